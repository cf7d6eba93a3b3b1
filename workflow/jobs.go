package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"github.com/sirupsen/logrus"
)

const (
	JobCollectiveMinimumAdmins = "collective-minimum-admins"
	JobHostMonthlyReport       = "host-monthly-report"
	JobExpirePersonalTokens    = "expire-personal-tokens"
	JobRequeueDeadActivities   = "requeue-dead-activities"
)

// RunCollectiveMinimumAdmins freezes hosted collectives and funds that have
// fewer admins than their host's COLLECTIVE_MINIMUM_ADMINS policy requires.
// A failing account is logged and the run continues with the next one.
func RunCollectiveMinimumAdmins(ctx context.Context, logger *logrus.Logger) error {
	hosts, err := models.ListHostsEnforcingMinimumAdmins(ctx)
	if err != nil {
		config.LogError(logger, "jobs.go", "RunCollectiveMinimumAdmins", "ListHostsEnforcingMinimumAdmins", nil, err)
		return err
	}

	var errs []error
	frozen := 0
	for _, host := range hosts {
		violations, err := models.ListMinimumAdminsViolations(ctx, host)
		if err != nil {
			config.LogError(logger, "jobs.go", "RunCollectiveMinimumAdmins", "ListMinimumAdminsViolations", host.ID, err)
			errs = append(errs, fmt.Errorf("host %d: %w", host.ID, err))
			continue
		}
		required := host.GetPolicies().CollectiveMinimumAdmins.NumberOfAdmins
		for _, v := range violations {
			message := fmt.Sprintf("%s requires at least %d admins, this account has %d", host.Name, required, v.AdminCount)
			ok, err := models.FreezeCollectiveForPolicy(ctx, v.Collective.ID, message)
			if err != nil {
				config.LogError(logger, "jobs.go", "RunCollectiveMinimumAdmins", "FreezeCollectiveForPolicy", v.Collective.ID, err)
				errs = append(errs, fmt.Errorf("collective %d: %w", v.Collective.ID, err))
				continue
			}
			if ok {
				frozen++
			}
		}
	}
	logger.WithFields(logrus.Fields{"job": JobCollectiveMinimumAdmins, "hosts": len(hosts), "frozen": frozen}).Info("minimum admins checked")
	return errors.Join(errs...)
}

// RunExpirePersonalTokens soft-deletes personal tokens past their expiration.
func RunExpirePersonalTokens(ctx context.Context, logger *logrus.Logger) error {
	count, err := models.ExpirePersonalTokens(ctx, time.Now().UTC())
	if err != nil {
		config.LogError(logger, "jobs.go", "RunExpirePersonalTokens", "ExpirePersonalTokens", nil, err)
		return err
	}
	logger.WithFields(logrus.Fields{"job": JobExpirePersonalTokens, "expired": count}).Info("personal tokens expired")
	return nil
}

// RunRequeueDeadActivities gives DEAD outbox rows a new publish budget.
func RunRequeueDeadActivities(ctx context.Context, logger *logrus.Logger) error {
	count, err := RequeueDeadActivities(ctx, config.GetDB())
	if err != nil {
		config.LogError(logger, "jobs.go", "RunRequeueDeadActivities", "RequeueDeadActivities", nil, err)
		return err
	}
	if count > 0 {
		logger.WithFields(logrus.Fields{"job": JobRequeueDeadActivities, "requeued": count}).Warn("dead activities requeued")
	}
	return nil
}
