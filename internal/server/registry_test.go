package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/oxo/internal/player"
	"github.com/udisondev/oxo/internal/protocol"
	"github.com/udisondev/oxo/internal/testutil"
)

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry(4)
	assert.Zero(t, reg.Len())

	s1, _ := pipeSession(t, reg)
	s2, _ := pipeSession(t, reg)
	assert.Equal(t, 2, reg.Len())
	assert.NotSame(t, s1, s2)

	reg.Unregister(s1)
	assert.Equal(t, 1, reg.Len())
	reg.Unregister(s1) // unknown by now, a no-op
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryRegister_DuplicateConn(t *testing.T) {
	reg := NewRegistry(4)
	_, server := testutil.PipeConn(t)

	_, err := reg.Register(server)
	require.NoError(t, err)
	_, err = reg.Register(server)
	assert.Error(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryRegister_Capacity(t *testing.T) {
	reg := NewRegistry(2)
	pipeSession(t, reg)
	pipeSession(t, reg)

	_, server := testutil.PipeConn(t)
	_, err := reg.Register(server)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(4)
	alice, _ := loggedInSession(t, reg, "alice")
	pipeSession(t, reg) // connected but never logged in

	assert.Same(t, alice, reg.Lookup("alice"))
	assert.Nil(t, reg.Lookup("bob"))
	assert.Nil(t, reg.Lookup(""))

	require.NoError(t, alice.Logout())
	assert.Nil(t, reg.Lookup("alice"))
}

func TestRegistryAllPlayers(t *testing.T) {
	reg := NewRegistry(4)
	assert.Empty(t, reg.AllPlayers())

	loggedInSession(t, reg, "alice")
	loggedInSession(t, reg, "bob")
	pipeSession(t, reg)

	var names []string
	for _, p := range reg.AllPlayers() {
		names = append(names, p.Name())
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)
}

func TestRegistryLogin_RaceOnName(t *testing.T) {
	reg := NewRegistry(8)
	s1, _ := pipeSession(t, reg)
	s2, _ := pipeSession(t, reg)

	errs := make(chan error, 2)
	for _, s := range []*Session{s1, s2} {
		s := s
		go func() {
			errs <- s.Login(player.New("alice"))
		}()
	}

	var failed int
	for _i := 0; _i < 2; _i++ {
		if err := <-errs; err != nil {
			assert.ErrorIs(t, err, ErrNameInUse)
			failed++
		}
	}
	assert.Equal(t, 1, failed, "exactly one of two racing logins wins the name")
}

func TestRegistryWaitForEmpty(t *testing.T) {
	reg := NewRegistry(4)
	reg.WaitForEmpty() // empty already, returns at once

	s1, _ := pipeSession(t, reg)
	s2, _ := pipeSession(t, reg)

	done := make(chan struct{})
	go func() {
		reg.WaitForEmpty()
		close(done)
	}()

	reg.Unregister(s1)
	select {
	case <-done:
		t.Fatal("WaitForEmpty returned with a session still registered")
	case <-time.After(50 * time.Millisecond):
	}

	reg.Unregister(s2)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForEmpty did not return after the last unregister")
	}
}

func TestRegistryShutdownAll(t *testing.T) {
	reg := NewRegistry(4)
	s, _ := pipeSession(t, reg)

	readErr := make(chan error, 1)
	go func() {
		_, _, err := protocol.ReadPacket(s.conn)
		readErr <- err
	}()

	reg.ShutdownAll()

	select {
	case err := <-readErr:
		require.Error(t, err, "a blocked read must be released by shutdown")
	case <-time.After(5 * time.Second):
		t.Fatal("read did not unblock after ShutdownAll")
	}

	// Draining refuses newcomers but keeps live sessions: they unwind and
	// unregister themselves.
	_, server := testutil.PipeConn(t)
	_, err := reg.Register(server)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 1, reg.Len())

	reg.Unregister(s)
	reg.WaitForEmpty()
}
