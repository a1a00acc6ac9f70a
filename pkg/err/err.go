package errprocess

import (
	"errors"
	"fmt"

	"hospital_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap 記錄錯誤並保留原始錯誤鏈, errors.Is 仍可判斷
func Wrap(errMsg string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(errMsg, append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", errMsg, err)
}
