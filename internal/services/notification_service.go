package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/internal/permissions"
	"github.com/exiloncms/exiloncms/internal/realtime"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

// Realtime events pushed on the notifications stream.
const (
	NotificationCreated = "notification.created"
	NotificationChanged = "notification.changed"
	NotificationDeleted = "notification.deleted"
	NotificationsRead   = "notification.read_all"
)

const (
	defaultInboxPage = 25
	maxInboxPage     = 100
)

// NotificationDTO is the admin bell representation of a notification.
type NotificationDTO struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Level     string         `json:"level"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Link      string         `json:"link,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NotificationInput describes the content of a notification. It is shared by
// single-recipient creation and admin broadcasts.
type NotificationInput struct {
	Type  string
	Level string
	Title string
	Body  string
	Link  string
	Data  map[string]any
}

// CreateNotificationInput addresses a notification to a single user.
type CreateNotificationInput struct {
	UserID string
	NotificationInput
}

// ListNotificationsInput pages through a user's inbox, newest first.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationEventPayload is the data attached to realtime notification events.
type NotificationEventPayload struct {
	Notification   *NotificationDTO `json:"notification,omitempty"`
	NotificationID string           `json:"notification_id,omitempty"`
}

// NotificationService stores admin inbox entries and pushes changes to the
// recipient's open websocket sessions.
type NotificationService struct {
	db  *gorm.DB
	hub *realtime.Hub
	now func() time.Time
}

// NewNotificationService constructs a NotificationService. The hub is optional.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, hub: hub, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ListForUser returns one page of the user's inbox.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > maxInboxPage {
		limit = defaultInboxPage
	}

	query := s.inbox(ensureContext(ctx), userID)
	if input.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Offset(max(0, input.Offset)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list: %w", err)
	}

	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, notificationDTO(row))
	}
	return items, nil
}

// Create stores a notification and pushes it to the recipient.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	row, err := s.newRow(strings.TrimSpace(input.UserID), input.NotificationInput)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ensureContext(ctx)).Create(row).Error; err != nil {
		return nil, fmt.Errorf("notification service: create: %w", err)
	}

	dto := notificationDTO(*row)
	s.push(row.UserID, NotificationCreated, &NotificationEventPayload{Notification: &dto})
	return &dto, nil
}

// NotifyAdmins sends the same notification to every active administrator:
// root users and holders of the admin.access permission. The rows are written
// in one batch and the returned count is the number of recipients.
func (s *NotificationService) NotifyAdmins(ctx context.Context, input NotificationInput) (int, error) {
	ctx = ensureContext(ctx)
	ids, err := s.adminUserIDs(ctx)
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	rows := make([]*models.Notification, 0, len(ids))
	for _, id := range ids {
		row, err := s.newRow(id, input)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("notification service: broadcast: %w", err)
	}

	for _, row := range rows {
		dto := notificationDTO(*row)
		s.push(row.UserID, NotificationCreated, &NotificationEventPayload{Notification: &dto})
	}
	return len(rows), nil
}

// UnreadCount feeds the badge on the admin bell.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.inbox(ensureContext(ctx), userID).Where("read_at IS NULL").Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// MarkRead acknowledges a notification. Marking an already read notification
// keeps its original read time.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	return s.setRead(ensureContext(ctx), userID, notificationID, true)
}

// MarkUnread puts a notification back in the unread badge count.
func (s *NotificationService) MarkUnread(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	return s.setRead(ensureContext(ctx), userID, notificationID, false)
}

// MarkAllRead acknowledges every unread notification of the user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.inbox(ensureContext(ctx), userID).
		Where("read_at IS NULL").
		Update("read_at", s.now()).Error; err != nil {
		return fmt.Errorf("notification service: mark all read: %w", err)
	}
	s.push(userID, NotificationsRead, nil)
	return nil
}

// Delete removes a notification from the user's inbox.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	s.push(userID, NotificationDeleted, &NotificationEventPayload{NotificationID: notificationID})
	return nil
}

func (s *NotificationService) setRead(ctx context.Context, userID, notificationID string, read bool) (*NotificationDTO, error) {
	var row models.Notification
	err := s.inbox(ctx, userID).Where("id = ?", notificationID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notification service: load: %w", err)
	}

	if row.Read() != read {
		var readAt *time.Time
		if read {
			now := s.now()
			readAt = &now
		}
		if err := s.db.WithContext(ctx).Model(&row).Update("read_at", readAt).Error; err != nil {
			return nil, fmt.Errorf("notification service: update read state: %w", err)
		}
		row.ReadAt = readAt
	}

	dto := notificationDTO(row)
	s.push(userID, NotificationChanged, &NotificationEventPayload{Notification: &dto, NotificationID: row.ID})
	return &dto, nil
}

func (s *NotificationService) newRow(userID string, input NotificationInput) (*models.Notification, error) {
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	kind := strings.TrimSpace(input.Type)
	if kind == "" {
		return nil, errors.New("notification service: type is required")
	}
	level := strings.ToLower(defaultIfEmpty(strings.TrimSpace(input.Level), models.NotificationInfo))
	switch level {
	case models.NotificationInfo, models.NotificationSuccess, models.NotificationWarning, models.NotificationDanger:
	default:
		return nil, apperrors.ErrBadRequest.WithMessage(fmt.Sprintf("unknown notification level %q", input.Level))
	}

	return &models.Notification{
		UserID: userID,
		Type:   kind,
		Level:  level,
		Title:  strings.TrimSpace(input.Title),
		Body:   strings.TrimSpace(input.Body),
		Link:   strings.TrimSpace(input.Link),
		Data:   encodeJSON(input.Data),
	}, nil
}

func (s *NotificationService) inbox(ctx context.Context, userID string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (s *NotificationService) adminUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Distinct("users.id").
		Joins("LEFT JOIN user_roles ON user_roles.user_id = users.id").
		Joins("LEFT JOIN role_permissions ON role_permissions.role_id = user_roles.role_id").
		Where("users.is_active = ?", true).
		Where("users.is_root = ? OR role_permissions.permission_id = ?", true, permissions.AdminAccess).
		Pluck("users.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("notification service: load admins: %w", err)
	}
	return ids, nil
}

func (s *NotificationService) push(userID, event string, payload *NotificationEventPayload) {
	if s.hub == nil {
		return
	}
	message := realtime.Message{Stream: realtime.StreamNotifications, Event: event}
	if payload != nil {
		message.Data = payload
	}
	s.hub.SendToUser(realtime.StreamNotifications, userID, message)
}

func notificationDTO(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        row.ID,
		Type:      row.Type,
		Level:     defaultIfEmpty(row.Level, models.NotificationInfo),
		Title:     row.Title,
		Body:      row.Body,
		Link:      row.Link,
		Data:      decodeJSON(row.Data),
		Read:      row.Read(),
		ReadAt:    row.ReadAt,
		CreatedAt: row.CreatedAt,
	}
}
