package service

import (
	"edu_library_backend/internal/model"
	"edu_library_backend/internal/util"
	"edu_library_backend/pkg/logger"
	"edu_library_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// NotificationRequest 一次生命周期事件的通知内容
type NotificationRequest struct {
	UserID        uint
	Title         string
	Message       string
	Type          model.NotificationType
	Metadata      model.JSONMap
	SendEmail     bool
	SendWebSocket bool
}

// NotificationSink 借阅操作只依赖该接口投递通知，单测用假实现
type NotificationSink interface {
	Dispatch(req NotificationRequest)
}

// EmailSender 邮件传输由外部负责，这里只定义出口
type EmailSender interface {
	Send(userID uint, subject, body string) error
}

// LogEmailSender 邮件通道未接入时的兜底实现
type LogEmailSender struct{}

func (LogEmailSender) Send(userID uint, subject, body string) error {
	logger.Log.Info("email (log sink)",
		zap.Uint("userId", userID),
		zap.String("subject", subject))
	return nil
}

// NotificationStore 通知持久层
type NotificationStore interface {
	Create(notification *model.Notification) error
	FindByUserPaged(userID uint, offset, limit int) ([]model.Notification, int64, error)
	MarkRead(id string, userID uint) (int64, error)
	UnreadCount(userID uint) (int64, error)
}

// NotificationService 落库 + WebSocket 实时推送 + 异步邮件。
// 任何通道失败只记日志，从不向调用方传播
type NotificationService struct {
	Repo       NotificationStore
	Hub        *NotificationHub
	Email      EmailSender
	emailQueue chan NotificationRequest
	done       chan struct{}
}

func NewNotificationService(repo NotificationStore, hub *NotificationHub, email EmailSender) *NotificationService {
	if email == nil {
		email = LogEmailSender{}
	}
	s := &NotificationService{
		Repo:       repo,
		Hub:        hub,
		Email:      email,
		emailQueue: make(chan NotificationRequest, 256),
		done:       make(chan struct{}),
	}
	go s.emailWorker()
	return s
}

func (s *NotificationService) emailWorker() {
	for {
		select {
		case req := <-s.emailQueue:
			if err := s.Email.Send(req.UserID, req.Title, req.Message); err != nil {
				logger.Log.Error("email send failed",
					zap.Error(err),
					zap.Uint("userId", req.UserID),
					zap.String("type", string(req.Type)))
				monitoring.NotificationCounter.WithLabelValues("email", "error").Inc()
				continue
			}
			monitoring.NotificationCounter.WithLabelValues("email", "ok").Inc()
		case <-s.done:
			return
		}
	}
}

// Dispatch 通常由调用方放在 goroutine 里执行，不阻塞借阅主流程
func (s *NotificationService) Dispatch(req NotificationRequest) {
	notification := &model.Notification{
		UserID:   req.UserID,
		Title:    req.Title,
		Message:  req.Message,
		Type:     req.Type,
		Metadata: req.Metadata,
	}
	if err := s.Repo.Create(notification); err != nil {
		logger.Log.Error("notification persist failed",
			zap.Error(err),
			zap.Uint("userId", req.UserID),
			zap.String("type", string(req.Type)))
		monitoring.NotificationCounter.WithLabelValues("inapp", "error").Inc()
	} else {
		monitoring.NotificationCounter.WithLabelValues("inapp", "ok").Inc()
	}

	if req.SendWebSocket && s.Hub != nil {
		s.Hub.PushToUser(req.UserID, WSMessage{
			Type: "NOTIFICATION",
			Data: notification,
		})
	}

	if req.SendEmail {
		select {
		case s.emailQueue <- req:
		default:
			// 队列满了宁可丢邮件也不能阻塞业务
			logger.Log.Warn("email queue full, dropping",
				zap.Uint("userId", req.UserID),
				zap.String("type", string(req.Type)))
			monitoring.NotificationCounter.WithLabelValues("email", "dropped").Inc()
		}
	}
}

func (s *NotificationService) List(userID uint, page, limit int) ([]model.Notification, int64, error) {
	offset := (page - 1) * limit
	return s.Repo.FindByUserPaged(userID, offset, limit)
}

func (s *NotificationService) UnreadCount(userID uint) (int64, error) {
	return s.Repo.UnreadCount(userID)
}

func (s *NotificationService) MarkRead(userID uint, id string) error {
	affected, err := s.Repo.MarkRead(id, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return util.ErrNotificationNotFound
	}
	return nil
}

func (s *NotificationService) Stop() {
	close(s.done)
}
