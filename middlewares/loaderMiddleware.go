package middlewares

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders wrap your data loaders to inject via middleware
type Loaders struct {
	CollectiveLoader      *dataloader.Loader[int, *models.Collective]
	UserLoader            *dataloader.Loader[int, *models.User]
	AdminsLoader          *dataloader.Loader[int, []*models.Collective]
	TwoFactorMethodLoader *dataloader.Loader[int, []*models.UserTwoFactorMethod]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(conn *gorm.DB) *Loaders {
	collectiveReader := &collectiveReader{db: conn}
	userReader := &userReader{db: conn}
	adminReader := &adminReader{db: conn}
	twoFactorMethodReader := &twoFactorMethodReader{db: conn}

	return &Loaders{
		CollectiveLoader:      dataloader.NewBatchedLoader(collectiveReader.getCollectives, dataloader.WithWait[int, *models.Collective](time.Millisecond)),
		UserLoader:            dataloader.NewBatchedLoader(userReader.getUsers, dataloader.WithWait[int, *models.User](time.Millisecond)),
		AdminsLoader:          dataloader.NewBatchedLoader(adminReader.getAdmins, dataloader.WithWait[int, []*models.Collective](time.Millisecond)),
		TwoFactorMethodLoader: dataloader.NewBatchedLoader(twoFactorMethodReader.getTwoFactorMethods, dataloader.WithWait[int, []*models.UserTwoFactorMethod](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the request loaders, nil outside of an HTTP request.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(loadersKey).(*Loaders)
	return loaders
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// turns results from db into dataloader results, missing ids get NotFound
func generateLoaderResults[T models.Identifier](results []T, ids []int) []*dataloader.Result[*T] {
	resultMap := make(map[int]T, len(results))
	for _, result := range results {
		resultMap[result.GetId()] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data, ok := resultMap[id]
		if !ok {
			loaderResults = append(loaderResults, &dataloader.Result[*T]{
				Error: utils.NewNotFound(fmt.Sprintf("%s #%d not found", utils.GetTypeName[T](), id)),
			})
			continue
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}

// each reference id has many related results
func generateLoaderArrayResults[T any](results []T, referenceIds []int, referenceOf func(T) int) []*dataloader.Result[[]*T] {
	resultMap := make(map[int][]*T)
	for _, result := range results {
		// creating a new variable every turn, to avoid pointing to the address of result
		copy := result
		ref := referenceOf(result)
		resultMap[ref] = append(resultMap[ref], &copy)
	}
	loaderResults := make([]*dataloader.Result[[]*T], 0, len(referenceIds))
	for _, id := range referenceIds {
		loaderResults = append(loaderResults, &dataloader.Result[[]*T]{Data: resultMap[id]})
	}
	return loaderResults
}
