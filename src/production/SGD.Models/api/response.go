package api_models

// ApiResponse is the envelope returned by every JSON endpoint
type ApiResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success wraps data with an HTTP-style success code
func Success(code int, message string, data interface{}) ApiResponse {
	return ApiResponse{Code: code, Message: message, Data: data}
}

// Failure builds the envelope for an application error
func Failure(err *AppError) ApiResponse {
	resp := ApiResponse{Code: int(err.Code), Message: err.Code.Message()}
	if err.Detail != "" {
		resp.Data = err.Detail
	}
	return resp
}
