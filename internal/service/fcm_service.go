package service

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FCMService sends push notifications via Firebase Cloud Messaging.
type FCMService struct {
	client *messaging.Client
	log    *zap.Logger
}

// NewFCMService creates an FCM service. Returns nil if Firebase is not configured.
func NewFCMService(ctx context.Context, serviceAccountPath string, log *zap.Logger) *FCMService {
	if serviceAccountPath == "" {
		return nil
	}
	log = log.Named("fcm")
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		log.Warn("firebase app init failed, push disabled", zap.Error(err))
		return nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		log.Warn("firebase messaging client failed, push disabled", zap.Error(err))
		return nil
	}
	return &FCMService{client: client, log: log}
}

// Send sends a push notification to the given FCM token. A nil service or an
// empty token is a no-op.
func (s *FCMService) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if s == nil || token == "" {
		return nil
	}
	msg := &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data:  data,
		Token: token,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		s.log.Warn("push send failed", zap.Error(err))
		return err
	}
	return nil
}
