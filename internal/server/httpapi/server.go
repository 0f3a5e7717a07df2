// Package httpapi exposes the vault over a JSON/multipart HTTP API routed
// with chi.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/dmitrijs2005/filevault/internal/server/sharing"
)

// UserAPI is the account side of the server.
type UserAPI interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// VaultAPI is the file side of the server.
type VaultAPI interface {
	Upload(ctx context.Context, req services.UploadRequest) (*services.UploadResult, error)
	Download(ctx context.Context, requesterID, fileID string) (*services.Download, error)
	Delete(ctx context.Context, ownerID, fileID string) error
	SetVisibility(ctx context.Context, ownerID, fileID string, public bool) (*models.StoredFile, error)
	Share(ctx context.Context, ownerID, fileID, granteeEmail string, req sharing.GrantRequest) (*models.ShareGrant, error)
	Revoke(ctx context.Context, ownerID, grantID string) error
	ListGrants(ctx context.Context, ownerID, fileID string) ([]*models.ShareGrant, error)
	ListMine(ctx context.Context, ownerID string) ([]*models.StoredFile, error)
	ListPublic(ctx context.Context) ([]*models.StoredFile, error)
	ListSharedWithMe(ctx context.Context, userID string) ([]*models.SharedFile, error)
}

const shutdownTimeout = 10 * time.Second

type Server struct {
	address       string
	logger        logging.Logger
	users         UserAPI
	vault         VaultAPI
	maxUploadSize int64
}

func NewServer(address string, l logging.Logger, users UserAPI, vault VaultAPI, maxUploadSize int64) *Server {
	return &Server{
		address:       address,
		logger:        l.With("module", "http_server"),
		users:         users,
		vault:         vault,
		maxUploadSize: maxUploadSize,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *Server) serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
