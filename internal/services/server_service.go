package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
)

// ErrServerNotFound indicates the requested game server does not exist.
var ErrServerNotFound = apperrors.New("SERVER_NOT_FOUND", "Server not found", http.StatusNotFound)

const (
	serverStatusTTL     = 60 * time.Second
	serverDialTimeout   = 3 * time.Second
	serverStatusPrefix  = "servers:status:"
	defaultServerPortNo = 25565
)

// ServerInput carries game server fields.
type ServerInput struct {
	Name      string
	Address   string
	Port      int
	Type      string
	JoinURL   string
	IsDefault bool
	IsHidden  bool
}

// ServerStatus is the cached outcome of a reachability probe.
type ServerStatus struct {
	ServerID  string    `json:"server_id"`
	Online    bool      `json:"online"`
	LatencyMS int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
}

// DialFunc opens a network connection; it matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ServerService manages game servers shown in status widgets.
type ServerService struct {
	db      *gorm.DB
	store   cache.Store
	actions *ActionLogService
	dial    DialFunc
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewServerService constructs a ServerService. store may be nil to disable caching.
func NewServerService(db *gorm.DB, store cache.Store, actions *ActionLogService) (*ServerService, error) {
	if db == nil {
		return nil, errors.New("server service: db is required")
	}
	dialer := &net.Dialer{}
	return &ServerService{
		db:      db,
		store:   store,
		actions: actions,
		dial:    dialer.DialContext,
		timeout: serverDialTimeout,
		now:     time.Now,
		log:     logger.WithModule("servers"),
	}, nil
}

// List returns servers by position. Hidden servers are skipped unless includeHidden.
func (s *ServerService) List(ctx context.Context, includeHidden bool) ([]models.Server, error) {
	ctx = ensureContext(ctx)
	query := s.db.WithContext(ctx).Order("position ASC").Order("name ASC")
	if !includeHidden {
		query = query.Where("is_hidden = ?", false)
	}
	var servers []models.Server
	if err := query.Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("server service: list: %w", err)
	}
	return servers, nil
}

// Get loads a server by id.
func (s *ServerService) Get(ctx context.Context, id string) (*models.Server, error) {
	ctx = ensureContext(ctx)
	var server models.Server
	err := s.db.WithContext(ctx).First(&server, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("server service: get: %w", err)
	}
	return &server, nil
}

// Create registers a server. Only one server can be the default.
func (s *ServerService) Create(ctx context.Context, input ServerInput) (*models.Server, error) {
	ctx = ensureContext(ctx)
	server := &models.Server{}
	if err := applyServerInput(server, input); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if server.IsDefault {
			if err := tx.Model(&models.Server{}).Where("is_default = ?", true).Update("is_default", false).Error; err != nil {
				return err
			}
		}
		var count int64
		if err := tx.Model(&models.Server{}).Count(&count).Error; err != nil {
			return err
		}
		server.Position = int(count)
		return tx.Create(server).Error
	})
	if err != nil {
		return nil, fmt.Errorf("server service: create: %w", err)
	}

	recordAction(s.actions, ctx, ActionEntry{Action: ActionServerCreate, EntityType: "server", EntityID: server.ID})
	return server, nil
}

// Update replaces the attributes of a server and drops its cached status.
func (s *ServerService) Update(ctx context.Context, id string, input ServerInput) (*models.Server, error) {
	ctx = ensureContext(ctx)
	server, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyServerInput(server, input); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if server.IsDefault {
			if err := tx.Model(&models.Server{}).Where("is_default = ? AND id <> ?", true, server.ID).Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Model(server).
			Select("name", "address", "port", "type", "join_url", "is_default", "is_hidden").
			Updates(server).Error
	})
	if err != nil {
		return nil, fmt.Errorf("server service: update: %w", err)
	}

	s.dropStatus(ctx, server.ID)
	recordAction(s.actions, ctx, ActionEntry{Action: ActionServerUpdate, EntityType: "server", EntityID: server.ID})
	return server, nil
}

// Delete removes a server.
func (s *ServerService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).Delete(&models.Server{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("server service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrServerNotFound
	}
	s.dropStatus(ctx, id)
	recordAction(s.actions, ctx, ActionEntry{Action: ActionServerDelete, EntityType: "server", EntityID: id})
	return nil
}

// Status probes the server over TCP, reusing a result younger than a minute.
func (s *ServerService) Status(ctx context.Context, id string) (*ServerStatus, error) {
	ctx = ensureContext(ctx)
	key := serverStatusPrefix + id

	if s.store != nil {
		if status, ok, err := cache.GetJSON[ServerStatus](ctx, s.store, key); err == nil && ok {
			return &status, nil
		}
	}

	server, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := s.probe(ctx, server)
	if s.store != nil {
		if err := cache.SetJSON(ctx, s.store, key, status, serverStatusTTL); err != nil {
			s.log.Warn("server status cache write failed", zap.String("server", id), zap.Error(err))
		}
	}
	return &status, nil
}

func (s *ServerService) probe(ctx context.Context, server *models.Server) ServerStatus {
	status := ServerStatus{ServerID: server.ID, CheckedAt: s.now().UTC()}

	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	conn, err := s.dial(dialCtx, "tcp", net.JoinHostPort(server.Address, strconv.Itoa(server.Port)))
	if err != nil {
		s.log.Debug("server offline", zap.String("server", server.Name), zap.Error(err))
		return status
	}
	_ = conn.Close()

	status.Online = true
	status.LatencyMS = time.Since(started).Milliseconds()
	return status
}

func (s *ServerService) dropStatus(ctx context.Context, id string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, serverStatusPrefix+id); err != nil {
		s.log.Warn("server status cache not cleared", zap.String("server", id), zap.Error(err))
	}
}

func applyServerInput(server *models.Server, input ServerInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return apperrors.NewBadRequest("name is required")
	}
	address := strings.TrimSpace(input.Address)
	if address == "" {
		return apperrors.NewBadRequest("address is required")
	}
	port := input.Port
	if port == 0 {
		port = defaultServerPortNo
	}
	if port < 1 || port > 65535 {
		return apperrors.NewBadRequest("port must be between 1 and 65535")
	}
	kind := strings.ToLower(strings.TrimSpace(input.Type))
	switch kind {
	case "":
		kind = models.ServerTypeTCP
	case models.ServerTypeMinecraft, models.ServerTypeSteam, models.ServerTypeFiveM, models.ServerTypeTCP:
	default:
		return apperrors.NewBadRequest(fmt.Sprintf("unsupported server type %q", input.Type))
	}

	server.Name = name
	server.Address = address
	server.Port = port
	server.Type = kind
	server.JoinURL = strings.TrimSpace(input.JoinURL)
	server.IsDefault = input.IsDefault
	server.IsHidden = input.IsHidden
	return nil
}
