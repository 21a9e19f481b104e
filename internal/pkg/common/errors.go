package common

import (
	"errors"
	"net/http"
	"time"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Detail    string    `json:"detail"`               // 錯誤信息
	ErrorCode string    `json:"error_code,omitempty"` // 錯誤代碼
	Timestamp time.Time `json:"timestamp"`            // 發生時間
}

// NewErrorResponse 創建錯誤響應
func NewErrorResponse(code, detail string) ErrorResponse {
	return ErrorResponse{
		Detail:    detail,
		ErrorCode: code,
		Timestamp: time.Now(),
	}
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap 返回原始錯誤
func (e *CustomError) Unwrap() error {
	return e.Err
}

// Response 轉換為對外的錯誤響應，不帶出原始錯誤內容
func (e *CustomError) Response() ErrorResponse {
	return NewErrorResponse(e.Code, e.Message)
}

// WithMessage 複製錯誤並替換對外訊息
func (e *CustomError) WithMessage(message string) *CustomError {
	cp := *e
	cp.Message = message
	return &cp
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// ValidationError 表示驗證錯誤
type ValidationError struct {
	message string
}

// Error 實現 error 介面
func (e *ValidationError) Error() string {
	return e.message
}

// NewValidationError 創建新的驗證錯誤
func NewValidationError(message string) error {
	return &ValidationError{
		message: message,
	}
}

// IsValidationError 檢查是否為驗證錯誤
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// 預定義錯誤代碼
const (
	// 客戶端錯誤 (4xx)
	ErrCodeInvalidRequest    = "INVALID_REQUEST"     // 400
	ErrCodeNotFound          = "NOT_FOUND"           // 404
	ErrCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"  // 405
	ErrCodeRequestTimeout    = "REQUEST_TIMEOUT"     // 408
	ErrCodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"   // 413
	ErrCodeTooManyRequests   = "TOO_MANY_REQUESTS"   // 429
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED" // 429
	ErrCodeDuplicateRequest  = "DUPLICATE_REQUEST"   // 429

	// 服務器錯誤 (5xx)
	ErrCodeInternalError      = "INTERNAL_ERROR"           // 500
	ErrCodeGenerationFailed   = "RECIPE_GENERATION_FAILED" // 500
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"      // 503
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"          // 504
)

// 預定義錯誤
var (
	// 客戶端錯誤
	ErrInvalidRequest    = NewError(ErrCodeInvalidRequest, "Invalid request", http.StatusBadRequest, nil)
	ErrNotFound          = NewError(ErrCodeNotFound, "Resource not found", http.StatusNotFound, nil)
	ErrMethodNotAllowed  = NewError(ErrCodeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed, nil)
	ErrPayloadTooLarge   = NewError(ErrCodePayloadTooLarge, "Request body too large", http.StatusRequestEntityTooLarge, nil)
	ErrRateLimitExceeded = NewError(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests, nil)
	ErrDuplicateRequest  = NewError(ErrCodeDuplicateRequest, "Duplicate request, please wait before retrying", http.StatusTooManyRequests, nil)

	// 服務器錯誤
	ErrInternalError      = NewError(ErrCodeInternalError, "Internal server error occurred", http.StatusInternalServerError, nil)
	ErrGenerationFailed   = NewError(ErrCodeGenerationFailed, "Failed to generate recipes. Please try again.", http.StatusInternalServerError, nil)
	ErrServiceUnavailable = NewError(ErrCodeServiceUnavailable, "Service temporarily unavailable", http.StatusServiceUnavailable, nil)
	ErrGatewayTimeout     = NewError(ErrCodeGatewayTimeout, "Request timeout", http.StatusGatewayTimeout, nil)
)
