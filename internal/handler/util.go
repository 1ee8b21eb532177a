package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jun/drivemirror/internal/adapter"
	"github.com/jun/drivemirror/internal/drive"
	"github.com/jun/drivemirror/internal/logging"
	"go.uber.org/zap"
)

// GetUserID extracts the caller ID from the Authorization header or session cookie.
func GetUserID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	// Helper for case-insensitive header lookup
	getHeader := func(name string) string {
		for k, v := range req.Headers {
			if strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	}

	// 1. Check Authorization Header (Bearer <token>)
	tokenString := ""
	authHeader := getHeader("Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}

	// 2. Check Cookie
	if tokenString == "" {
		// Cookie format: session_token=xxx; ...
		cookies := getHeader("Cookie")
		if cookies != "" {
			for _, part := range strings.Split(cookies, ";") {
				part = strings.TrimSpace(part)
				if strings.HasPrefix(part, "session_token=") {
					tokenString = strings.TrimPrefix(part, "session_token=")
					break
				}
			}
		}
	}

	if tokenString == "" {
		return "", fmt.Errorf("no authorization token found")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}

	return "", fmt.Errorf("invalid token claims")
}

// authorize checks the caller's token and attaches the caller to the request logger.
func authorize(ctx context.Context, req events.APIGatewayProxyRequest, jwtSecret string) (*events.APIGatewayProxyResponse, *zap.Logger) {
	logger := logging.WithContext(ctx)
	userID, err := GetUserID(req, jwtSecret)
	if err != nil {
		logger.Info("unauthorized request", zap.String("path", req.Path), zap.Error(err))
		return &events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized, Body: "Unauthorized"}, logger
	}
	return nil, logger.With(zap.String("user_id", userID))
}

func jsonResponse(status int, v any) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("marshal response: %w", err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}

// errorResponse maps a client error to an HTTP status.
func errorResponse(logger *zap.Logger, msg string, err error) events.APIGatewayProxyResponse {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
	} else {
		logger.Info(msg, zap.Error(err))
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       fmt.Sprintf("%s: %v", msg, err),
	}
}

// StatusFor returns the HTTP status describing err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, adapter.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, adapter.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, drive.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, drive.ErrAuthentication),
		errors.Is(err, drive.ErrRemoteService),
		errors.Is(err, drive.ErrPartialDownload):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
