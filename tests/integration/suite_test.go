package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/udisondev/oxo/internal/config"
	"github.com/udisondev/oxo/internal/server"
	"github.com/udisondev/oxo/internal/testutil"
)

// MatchServerSuite поднимает один сервер на случайном порту для всех
// сценарных тестов. Каждый тест использует собственные имена игроков:
// реестр игроков живёт всё время процесса и рейтинги переживают reconnect.
type MatchServerSuite struct {
	suite.Suite
	srv      *server.Server
	addr     string
	cancel   context.CancelFunc
	serveErr chan error
}

// SetupSuite запускает сервер и ждёт его готовности.
func (s *MatchServerSuite) SetupSuite() {
	cfg := config.DefaultServer()
	cfg.BindAddress = "127.0.0.1"
	s.srv = server.New(cfg, 0)

	ln, addr := testutil.ListenTCP(s.T())
	s.addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.serveErr = make(chan error, 1)
	go func() {
		s.serveErr <- s.srv.Serve(ctx, ln)
	}()

	if err := testutil.WaitForTCPReady(s.addr, 5*time.Second); err != nil {
		s.T().Fatalf("server failed to start: %v", err)
	}
}

// SetupTest ждёт пока сессии предыдущего теста полностью разойдутся,
// иначе users listing следующего теста увидит чужих игроков.
func (s *MatchServerSuite) SetupTest() {
	testutil.WaitForCleanup(s.T(), func() bool {
		return s.srv.Registry().Len() == 0
	}, 5*time.Second)
}

// TearDownSuite гасит сервер и проверяет, что он дошёл до quiescence.
func (s *MatchServerSuite) TearDownSuite() {
	s.cancel()
	select {
	case err := <-s.serveErr:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.T().Error("server did not stop after shutdown")
	}
}

// TestMatchServerSuite — entry point для запуска MatchServerSuite.
func TestMatchServerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	suite.Run(t, new(MatchServerSuite))
}
