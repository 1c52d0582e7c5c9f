// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/paiban/nurseroster/pkg/errors"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 8 << 20

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": appErr.Details,
		"fields":  appErr.Fields,
	})
}

// toAppError 非 AppError 按内部错误处理
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.HTTPStatus == 0 {
			appErr.HTTPStatus = apperrors.New(appErr.Code, "").HTTPStatus
		}
		return appErr
	}
	return apperrors.Wrap(err, apperrors.CodeInternal, "内部错误").WithDetails(err.Error())
}

// decodeJSON 解析请求体
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "解析请求失败").WithDetails(err.Error())
	}
	return nil
}

func monthLabel(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}
