package errors

import (
	"net/http"
)

// NotificationKind groups failures the way they are presented to the user
type NotificationKind string

const (
	KindNetwork NotificationKind = "network"
	KindServer  NotificationKind = "server"
	KindUnknown NotificationKind = "unknown"
)

// Notification is the user-facing rendering of a failed request
type Notification struct {
	Kind      NotificationKind `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Status    int              `json:"status,omitempty"`
	Operation string           `json:"operation,omitempty"`
}

// Classify turns any error into a Notification.
func Classify(err error) Notification {
	appErr := GetAppError(err)
	if appErr == nil {
		msg := "An unexpected error occurred. Please try again."
		if err != nil && err.Error() != "" {
			msg = err.Error()
		}
		return Notification{Kind: KindUnknown, Title: "Error", Message: msg}
	}

	n := Notification{
		Title:     "Error",
		Operation: Operation(err),
		Status:    Status(err),
	}

	switch {
	case appErr.Type == ErrorTypeNetwork:
		n.Kind = KindNetwork
		n.Title = "Connection Error"
		n.Message = "Network connection failed. Please check your internet connection."
	case appErr.Type == ErrorTypeUnavailable:
		n.Kind = KindServer
		n.Status = http.StatusServiceUnavailable
		n.Message = "Server error occurred. Please try again later."
	case n.Status >= 500:
		n.Kind = KindServer
		n.Message = "Server error occurred. Please try again later."
	case n.Status == http.StatusNotFound:
		n.Kind = KindServer
		n.Message = "Requested resource not found."
	case n.Status >= 400:
		n.Kind = KindServer
		n.Message = appErr.Message
		if n.Message == "" {
			n.Message = "Request failed. Please check your input."
		}
	default:
		n.Kind = KindUnknown
		n.Message = appErr.Message
		if n.Message == "" {
			n.Message = "An unexpected error occurred. Please try again."
		}
	}

	return n
}
