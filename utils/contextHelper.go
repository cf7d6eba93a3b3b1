package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/collectives_backend/appctx"
)

var (
	ContextKeyToken           = appctx.ContextKeyToken
	ContextKeySessionId       = appctx.ContextKeySessionId
	ContextKeyUserId          = appctx.ContextKeyUserId
	ContextKeyUserName        = appctx.ContextKeyUserName
	ContextKeyCollectiveId    = appctx.ContextKeyCollectiveId
	ContextKeyCorrelationId   = appctx.ContextKeyCorrelationId
	ContextKeyClientIP        = appctx.ContextKeyClientIP
	ContextKeyScopes          = appctx.ContextKeyScopes
	ContextKeyTwoFactorHeader = appctx.ContextKeyTwoFactorHeader
	ContextKeyIsRoot          = appctx.ContextKeyIsRoot
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetSessionIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeySessionId)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCollectiveIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyCollectiveId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetClientIPFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyClientIP)
}

// GetScopesFromContext returns the personal token scopes.
// ok is false when the request is not scope-restricted.
func GetScopesFromContext(ctx context.Context) ([]string, bool) {
	return appctx.GetStrings(ctx, ContextKeyScopes)
}

func GetTwoFactorHeaderFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTwoFactorHeader)
}

func GetIsRootFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsRoot)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetSessionIdInContext(ctx context.Context, sessionId string) context.Context {
	return appctx.Set(ctx, ContextKeySessionId, sessionId)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCollectiveIdInContext(ctx context.Context, collectiveId int) context.Context {
	return appctx.Set(ctx, ContextKeyCollectiveId, collectiveId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetClientIPInContext(ctx context.Context, ip string) context.Context {
	return appctx.Set(ctx, ContextKeyClientIP, ip)
}

func SetScopesInContext(ctx context.Context, scopes []string) context.Context {
	return appctx.Set(ctx, ContextKeyScopes, scopes)
}

func SetTwoFactorHeaderInContext(ctx context.Context, header string) context.Context {
	return appctx.Set(ctx, ContextKeyTwoFactorHeader, header)
}

func SetIsRootInContext(ctx context.Context, isRoot bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsRoot, isRoot)
}
