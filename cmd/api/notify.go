package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/propio/chat-server/internal/chat"
)

// notificationRecorder is the slice of the notifications store the audit
// wrapper needs.
type notificationRecorder interface {
	Record(ctx context.Context, userID, title, body, ntype string) error
}

// auditedNotifier records every successfully sent push in the notifications
// collection. The audit is best-effort; a failed insert never fails the
// push.
type auditedNotifier struct {
	inner chat.Notifier
	store notificationRecorder
	log   *logrus.Entry
}

func (a *auditedNotifier) SendToToken(ctx context.Context, token, title, body string, payload map[string]string) error {
	err := a.inner.SendToToken(ctx, token, title, body, payload)
	if err != nil {
		return err
	}
	if rerr := a.store.Record(ctx, payload["receiverId"], title, body, payload["type"]); rerr != nil {
		a.log.WithError(rerr).Warn("notification audit insert failed")
	}
	return nil
}
