package main

import (
	goflag "flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/internal/config"
	"github.com/aonescu/kubedit/internal/resource"
)

func main() {
	cmd, err := newRootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	cmd := &cobra.Command{
		Use:   "kubedit",
		Short: "Edit Kubernetes resources as local YAML documents kept in sync with the cluster",
		Long: `kubedit binds local YAML documents to the cluster objects they describe.

Every document is reconciled on local edits, on changes of its cluster object and
periodically. Unedited documents follow the cluster, edited ones can be pushed.`,
		Example: `  # Keep existing documents in sync
  kubedit watch deploy/api@prod.yaml deploy/worker@prod.yaml

  # Fetch a resource into ./manifests and keep it in sync
  kubedit open Deployment/prod/api --dir manifests`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cfg.BindFlags(cmd.PersistentFlags())
	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(newWatchCommand(&cfg))
	cmd.AddCommand(newOpenCommand(&cfg))
	return cmd, nil
}

func newWatchCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE...",
		Short: "Keep existing documents in sync with the cluster",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				if err := a.watchFile(path); err != nil {
					return err
				}
			}
			return a.Run(cmd.Context())
		},
	}
}

func newOpenCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "open KIND/NAMESPACE/NAME",
		Short: "Fetch a resource into a new document and keep it in sync",
		Long: `Fetch a resource into a new document and keep it in sync.

KIND/NAME is accepted as well; namespaced kinds then use --namespace.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resource.ParseIdentity(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(*cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.openResource(cmd.Context(), id); err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func endpoints(addr string) []string {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	return []string{
		"GET  " + baseURL + "/health",
		"GET  " + baseURL + "/ready",
		"GET  " + baseURL + "/metrics",
		"GET  " + baseURL + "/api/v1/sessions",
		"POST " + baseURL + "/api/v1/sessions/push?document=foo@ns.yaml",
		"POST " + baseURL + "/api/v1/sessions/reload?document=foo@ns.yaml",
		"POST " + baseURL + "/api/v1/sessions/update?document=foo@ns.yaml",
		"GET  " + baseURL + "/api/v1/history?document=foo@ns.yaml&limit=50",
		"GET  " + baseURL + "/api/v1/stats",
	}
}
