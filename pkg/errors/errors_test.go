package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code     Code
		expected int
	}{
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeValidationFail, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeLockConflict, http.StatusConflict},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeNoFeasibleSolution, http.StatusUnprocessableEntity},
		{CodeDatabaseError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").HTTPStatus; got != tt.expected {
				t.Errorf("HTTPStatus = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestIsAndGetCode(t *testing.T) {
	base := LockConflict("n1", 0, "固定N与禁止N冲突")
	wrapped := fmt.Errorf("构建锁定: %w", base)

	if !Is(wrapped, CodeLockConflict) {
		t.Error("Is() 应能穿透包装")
	}
	if GetCode(wrapped) != CodeLockConflict {
		t.Errorf("GetCode() = %s", GetCode(wrapped))
	}
	if GetHTTPStatus(wrapped) != http.StatusConflict {
		t.Errorf("GetHTTPStatus() = %d", GetHTTPStatus(wrapped))
	}
	if GetCode(fmt.Errorf("plain")) != CodeUnknown {
		t.Error("普通错误应返回 UNKNOWN")
	}
	if base.Fields["nurse_id"] != "n1" {
		t.Errorf("Fields = %v", base.Fields)
	}
}

func TestValidationErrors(t *testing.T) {
	var ve ValidationErrors
	if ve.HasErrors() {
		t.Error("空集合不应有错误")
	}
	ve.Add("year", "必须大于1900")
	ve.Add("nurses", "不能为空")
	ve.Add("nurses", "存在重复ID")
	appErr := ve.ToAppError()
	if appErr.Code != CodeValidationFail || len(appErr.Fields) != 2 {
		t.Errorf("ToAppError() = %+v", appErr)
	}
	if appErr.Fields["nurses"] != "不能为空; 存在重复ID" {
		t.Errorf("Fields[nurses] = %v", appErr.Fields["nurses"])
	}
	if appErr.Message != "验证失败: year - 必须大于1900" {
		t.Errorf("Message = %s", appErr.Message)
	}
}
