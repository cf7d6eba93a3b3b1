package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/99designs/gqlgen/graphql"
	"github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"gorm.io/gorm"
)

const internalErrorMessage = "Something went wrong. Please try again later"

// ErrorPresenter turns resolver errors into GraphQL errors with an
// extensions.code. Errors that are not client-facing are logged and hidden.
func ErrorPresenter(ctx context.Context, err error) *gqlerror.Error {
	gqlErr := graphql.DefaultErrorPresenter(ctx, err)

	var appErr *utils.AppError
	switch {
	case errors.As(err, &appErr):
		gqlErr.Message = appErr.Message
		setCode(gqlErr, string(appErr.Code))
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, utils.ErrorRecordNotFound):
		gqlErr.Message = "Not found"
		setCode(gqlErr, string(utils.ErrorCodeNotFound))
	case isGraphQLError(err):
		// parsing, validation and null checks of the executor
	default:
		fields := logrus.Fields{"path": gqlErr.Path.String()}
		if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			fields["correlation_id"] = cid
		}
		config.GetLogger().WithFields(fields).Error(err.Error())
		gqlErr.Message = internalErrorMessage
		setCode(gqlErr, "INTERNAL_SERVER_ERROR")
	}
	return gqlErr
}

func isGraphQLError(err error) bool {
	var gqlErr *gqlerror.Error
	return errors.As(err, &gqlErr) && gqlErr.Unwrap() == nil
}

func setCode(err *gqlerror.Error, code string) {
	if err.Extensions == nil {
		err.Extensions = map[string]interface{}{}
	}
	err.Extensions["code"] = code
}

// RecoverFunc logs resolver panics with their stack.
func RecoverFunc(ctx context.Context, p interface{}) error {
	fields := logrus.Fields{"panic": fmt.Sprint(p), "stack": string(debug.Stack())}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		fields["correlation_id"] = cid
	}
	config.GetLogger().WithFields(fields).Error("graphql resolver panic")
	return errors.New("internal system error")
}
