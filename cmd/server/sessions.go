package server

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/aonescu/kubedit/internal/session"
)

// Sessions is the set of sessions exposed through the API.
type Sessions struct {
	mu   sync.RWMutex
	list []*session.Session
}

func NewSessions() *Sessions {
	return &Sessions{}
}

func (s *Sessions) Add(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, sess)
}

func (s *Sessions) Remove(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, registered := range s.list {
		if registered == sess {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}

// Find matches document against the current path of each session, then against its
// base name. Documents are renamed when they start describing another resource.
func (s *Sessions) Find(document string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.list {
		if sess.Document() == document {
			return sess, true
		}
	}
	for _, sess := range s.list {
		if filepath.Base(sess.Document()) == document {
			return sess, true
		}
	}
	return nil, false
}

// List returns the sessions ordered by document.
func (s *Sessions) List() []*session.Session {
	s.mu.RLock()
	list := append([]*session.Session(nil), s.list...)
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Document() < list[j].Document() })
	return list
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}
