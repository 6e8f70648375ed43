package storage

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"
)

// Provision creates the task table and events queue when they do not exist yet.
func (s *Storage) Provision(ctx context.Context) error {
	if _, err := s.taskTable.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return err
		}
		log.Debug("task table already exists")
	}
	if s.eventsQueue == nil {
		return nil
	}
	if _, err := s.eventsQueue.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
			return err
		}
		log.Debug("events queue already exists")
	}
	return nil
}
