package models_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
	"bitbucket.org/mmdatafocus/collectives_backend/paymentproviders"
	"bitbucket.org/mmdatafocus/collectives_backend/twofactor"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"bitbucket.org/mmdatafocus/collectives_backend/workflow"
	"github.com/GeertJohan/yubigo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func TestContributionRefundAndMinimumAdmins(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "collectives_test")

	settings, err := config.LoadSettings("test")
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	config.SetSettings(settings)

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	// 1) A user administering a host and two hosted collectives.
	alice, err := models.CreateUser(ctx, &models.NewUser{Email: "alice@test.local", Name: "Alice", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	ctx = utils.SetUserIdInContext(ctx, alice.ID)

	host, err := models.CreateCollective(ctx, &models.NewCollective{
		Slug: "test-host", Name: "Test Host", Type: models.CollectiveTypeOrganization, Currency: "USD",
		IsHostAccount: true, IsActive: true, Approved: true, AdminCollectiveId: &alice.CollectiveId,
	})
	if err != nil {
		t.Fatalf("CreateCollective host: %v", err)
	}
	if host.HostCollectiveId == nil || *host.HostCollectiveId != host.ID {
		t.Fatalf("a host should be its own fiscal host, got %v", host.HostCollectiveId)
	}
	newHosted := func(slug string) *models.Collective {
		c, err := models.CreateCollective(ctx, &models.NewCollective{
			Slug: slug, Name: slug, Type: models.CollectiveTypeCollective, Currency: "USD",
			IsActive: true, Approved: true, HostCollectiveId: &host.ID, AdminCollectiveId: &alice.CollectiveId,
		})
		if err != nil {
			t.Fatalf("CreateCollective %s: %v", slug, err)
		}
		return c
	}
	babel := newHosted("babel")
	webpack := newHosted("webpack")

	// 2) Seed the balance of babel with a host-funded entry.
	credit, debit := models.BuildTransactionPair(models.TransactionPayload{
		Kind:                 models.TransactionKindContribution,
		CollectiveId:         babel.ID,
		FromCollectiveId:     host.ID,
		HostCollectiveId:     host.ID,
		Amount:               10000,
		Currency:             "USD",
		AmountInHostCurrency: 10000,
		HostCurrency:         "USD",
	})
	group := uuid.NewString()
	credit.TransactionGroup, debit.TransactionGroup = group, group
	credit.Uuid, debit.Uuid = uuid.NewString(), uuid.NewString()
	if err := db.Create(&credit).Error; err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	if err := db.Create(&debit).Error; err != nil {
		t.Fatalf("seed debit: %v", err)
	}
	expectBalance(t, ctx, babel, 10000)

	// 3) babel contributes 50.00 to webpack from its balance.
	pm, err := models.GetOrCreateBalancePaymentMethod(ctx, babel.ID)
	if err != nil {
		t.Fatalf("GetOrCreateBalancePaymentMethod: %v", err)
	}
	order, err := models.CreatePendingOrder(ctx, &models.NewOrder{
		FromCollectiveId: babel.ID,
		CollectiveId:     webpack.ID,
		PaymentMethodId:  &pm.ID,
		Currency:         "USD",
		TotalAmount:      5000,
		Tags:             []string{"sponsor", "sponsor"},
	})
	if err != nil {
		t.Fatalf("CreatePendingOrder: %v", err)
	}
	contribution, err := paymentproviders.ProcessOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	// default host fee is 10%
	if contribution.Amount != 5000 || contribution.HostFeeInHostCurrency != -500 || contribution.NetAmountInCollectiveCurrency != 4500 {
		t.Fatalf("unexpected contribution %+v", contribution)
	}
	paidCredit, paidDebit, err := models.LockTransactionPair(db, contribution.TransactionGroup)
	if err != nil {
		t.Fatalf("LockTransactionPair: %v", err)
	}
	if paidCredit.Amount != -paidDebit.NetAmountInCollectiveCurrency || paidCredit.NetAmountInCollectiveCurrency != -paidDebit.Amount {
		t.Fatalf("ledger pair does not net to zero: credit=%+v debit=%+v", paidCredit, paidDebit)
	}
	expectBalance(t, ctx, webpack, 4500)
	expectBalance(t, ctx, babel, 5000)

	paid, err := models.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if paid.Status != models.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", paid.Status)
	}
	if tags := paid.TagList(); len(tags) != 1 || tags[0] != "sponsor" {
		t.Fatalf("tags should be deduplicated, got %v", tags)
	}

	// 4) Not enough funds flags the order ERROR.
	tooBig, err := models.CreatePendingOrder(ctx, &models.NewOrder{
		FromCollectiveId: babel.ID, CollectiveId: webpack.ID, PaymentMethodId: &pm.ID, Currency: "USD", TotalAmount: 999999,
	})
	if err != nil {
		t.Fatalf("CreatePendingOrder: %v", err)
	}
	if _, err := paymentproviders.ProcessOrder(ctx, tooBig.ID); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if failed, _ := models.GetOrder(ctx, tooBig.ID); failed == nil || failed.Status != models.OrderStatusError {
		t.Fatalf("order should be flagged ERROR")
	}

	// 5) Refund restores both balances once.
	refund, err := paymentproviders.RefundTransaction(ctx, contribution.ID, &alice.ID)
	if err != nil {
		t.Fatalf("RefundTransaction: %v", err)
	}
	if !refund.IsRefund || refund.CollectiveId != babel.ID {
		t.Fatalf("unexpected refund %+v", refund)
	}
	expectBalance(t, ctx, webpack, 0)
	expectBalance(t, ctx, babel, 10000)
	if refunded, _ := models.GetOrder(ctx, order.ID); refunded == nil || refunded.Status != models.OrderStatusRefunded {
		t.Fatalf("order should be REFUNDED")
	}
	if _, err := paymentproviders.RefundTransaction(ctx, contribution.ID, &alice.ID); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("second refund should fail with ValidationFailed, got %v", err)
	}

	// 5b) Orders across hosts fail without touching the ledger.
	otherHost, err := models.CreateCollective(ctx, &models.NewCollective{
		Slug: "other-host", Name: "Other Host", Type: models.CollectiveTypeOrganization, Currency: "USD",
		IsHostAccount: true, IsActive: true, Approved: true, AdminCollectiveId: &alice.CollectiveId,
	})
	if err != nil {
		t.Fatalf("CreateCollective other host: %v", err)
	}
	foreign, err := models.CreateCollective(ctx, &models.NewCollective{
		Slug: "foreign", Name: "Foreign", Type: models.CollectiveTypeCollective, Currency: "USD",
		IsActive: true, Approved: true, HostCollectiveId: &otherHost.ID, AdminCollectiveId: &alice.CollectiveId,
	})
	if err != nil {
		t.Fatalf("CreateCollective foreign: %v", err)
	}
	crossHost, err := models.CreatePendingOrder(ctx, &models.NewOrder{
		FromCollectiveId: babel.ID, CollectiveId: foreign.ID, PaymentMethodId: &pm.ID, Currency: "USD", TotalAmount: 1000,
	})
	if err != nil {
		t.Fatalf("CreatePendingOrder cross host: %v", err)
	}
	if _, err := paymentproviders.ProcessOrder(ctx, crossHost.ID); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("expected ValidationFailed for a cross host order, got %v", err)
	}
	expectBalance(t, ctx, babel, 10000)
	expectBalance(t, ctx, foreign, 0)

	// 5c) A host fee edit on the host reaches every hosted account.
	if _, err := models.EditCollectiveFeeStructure(ctx, host.ID, decimal.NewFromInt(5), false); err != nil {
		t.Fatalf("EditCollectiveFeeStructure: %v", err)
	}
	for _, c := range []*models.Collective{host, babel, webpack} {
		var reloaded models.Collective
		if err := db.First(&reloaded, c.ID).Error; err != nil {
			t.Fatalf("reload %s: %v", c.Slug, err)
		}
		if reloaded.HostFeePercent == nil || !reloaded.HostFeePercent.Equal(decimal.NewFromInt(5)) {
			t.Fatalf("%s host fee: got %v", c.Slug, reloaded.HostFeePercent)
		}
	}

	// 6) A frozen account cannot receive contributions.
	if _, err := models.SetCollectiveFreezeStatus(ctx, webpack.ID, models.AccountFreezeActionFreeze, "audit"); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := models.CreatePendingOrder(ctx, &models.NewOrder{
		FromCollectiveId: babel.ID, CollectiveId: webpack.ID, PaymentMethodId: &pm.ID, Currency: "USD", TotalAmount: 100,
	}); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("expected ValidationFailed for a frozen recipient, got %v", err)
	}
	if _, err := models.SetCollectiveFreezeStatus(ctx, webpack.ID, models.AccountFreezeActionUnfreeze, ""); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}

	// 7) The minimum admins job freezes collectives with a single admin.
	host, err = models.SetCollectivePolicies(ctx, host.ID, models.Policies{
		CollectiveMinimumAdmins: &models.MinimumAdminsPolicy{NumberOfAdmins: 2, Applies: models.MinimumAdminsAppliesAll, Freeze: true},
	})
	if err != nil {
		t.Fatalf("SetCollectivePolicies: %v", err)
	}
	violations, err := models.ListMinimumAdminsViolations(ctx, host)
	if err != nil {
		t.Fatalf("ListMinimumAdminsViolations: %v", err)
	}
	if len(violations) != 2 || violations[0].AdminCount != 1 {
		t.Fatalf("expected babel and webpack to violate the policy, got %+v", violations)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if err := workflow.RunCollectiveMinimumAdmins(ctx, logger); err != nil {
		t.Fatalf("RunCollectiveMinimumAdmins: %v", err)
	}
	for _, c := range []*models.Collective{babel, webpack} {
		var reloaded models.Collective
		if err := db.First(&reloaded, c.ID).Error; err != nil {
			t.Fatalf("reload %s: %v", c.Slug, err)
		}
		if !reloaded.IsFrozen() {
			t.Fatalf("%s should be frozen by the policy", c.Slug)
		}
	}
	// a second run finds nothing left to freeze
	if violations, err := models.ListMinimumAdminsViolations(ctx, host); err != nil || len(violations) != 0 {
		t.Fatalf("expected no violations after the run, got %v %v", violations, err)
	}

	// 8) Duplicating copies what the include flags ask for.
	amount := int64(1000)
	if err := db.Create(&models.Tier{CollectiveId: babel.ID, Name: "Backer", Slug: "backer", Amount: &amount, Currency: "USD"}).Error; err != nil {
		t.Fatalf("create tier: %v", err)
	}
	for _, child := range []struct {
		slug string
		typ  models.CollectiveType
	}{{"babel-meetup", models.CollectiveTypeEvent}, {"babel-docs", models.CollectiveTypeProject}} {
		if _, err := models.CreateCollective(ctx, &models.NewCollective{
			Slug: child.slug, Name: child.slug, Type: child.typ, Currency: "USD", ParentCollectiveId: &babel.ID,
		}); err != nil {
			t.Fatalf("CreateCollective %s: %v", child.slug, err)
		}
	}
	dup, err := models.DuplicateCollective(ctx, babel.ID, models.DuplicateAccountInclude{Tiers: true, Events: true}, nil, nil)
	if err != nil {
		t.Fatalf("DuplicateCollective: %v", err)
	}
	if !regexp.MustCompile(`^babel-[a-z2-9]{6}$`).MatchString(dup.Slug) {
		t.Fatalf("generated slug: got %q", dup.Slug)
	}
	if dup.Name != babel.Name || dup.HostCollectiveId != nil {
		t.Fatalf("copy should keep the name and have no host: %+v", dup)
	}
	if tiers, err := models.GetTiers(ctx, dup.ID); err != nil || len(tiers) != 1 || tiers[0].Name != "Backer" {
		t.Fatalf("tiers should be copied, got %v %v", tiers, err)
	}
	var dupChildren []models.Collective
	if err := db.Where("parent_collective_id = ?", dup.ID).Find(&dupChildren).Error; err != nil {
		t.Fatalf("load children: %v", err)
	}
	if len(dupChildren) != 1 || dupChildren[0].Type != models.CollectiveTypeEvent || !strings.HasPrefix(dupChildren[0].Slug, "babel-meetup-") {
		t.Fatalf("only the event should be copied, got %+v", dupChildren)
	}
	if admins, err := models.CountAdmins(ctx, dup.ID); err != nil || admins != 1 {
		t.Fatalf("the creator should administer the copy, got %d %v", admins, err)
	}

	bare, err := models.DuplicateCollective(ctx, babel.ID, models.DuplicateAccountInclude{}, utils.Ptr("Babel-Copy"), utils.Ptr("Babel copy"))
	if err != nil {
		t.Fatalf("DuplicateCollective with slug: %v", err)
	}
	if bare.Slug != "babel-copy" || bare.Name != "Babel copy" {
		t.Fatalf("requested slug and name: got %q %q", bare.Slug, bare.Name)
	}
	if tiers, _ := models.GetTiers(ctx, bare.ID); len(tiers) != 0 {
		t.Fatalf("tiers were not asked for, got %d", len(tiers))
	}
	if _, err := models.DuplicateCollective(ctx, babel.ID, models.DuplicateAccountInclude{}, utils.Ptr("babel-copy"), nil); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("a taken slug should fail with ValidationFailed, got %v", err)
	}

	// 9) Accounts with transactions and hosts still hosting cannot be deleted.
	if _, err := models.DeleteCollective(ctx, babel.ID); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("deleting an account with transactions should fail, got %v", err)
	}
	if _, err := models.DeleteCollective(ctx, otherHost.ID); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("deleting a host with hosted accounts should fail, got %v", err)
	}
	if _, err := models.DeleteCollective(ctx, foreign.ID); err != nil {
		t.Fatalf("DeleteCollective foreign: %v", err)
	}
	if _, err := models.DeleteCollective(ctx, otherHost.ID); err != nil {
		t.Fatalf("DeleteCollective other host once empty: %v", err)
	}
	if _, err := models.GetCollectiveBySlug(ctx, "other-host"); err == nil {
		t.Fatalf("deleted host should not be found by its slug")
	}
	if _, err := models.DeleteCollective(ctx, dup.ID); err != nil {
		t.Fatalf("DeleteCollective copy: %v", err)
	}
	var leftChildren int64
	if err := db.Model(&models.Collective{}).Where("parent_collective_id = ?", dup.ID).Count(&leftChildren).Error; err != nil || leftChildren != 0 {
		t.Fatalf("children should be deleted with their parent, %d left (%v)", leftChildren, err)
	}

	// 10) Recovery codes are only handed out when the user has none.
	twofactor.SetYubikeyVerifier(acceptingYubikeyVerifier{})
	t.Cleanup(func() { twofactor.SetYubikeyVerifier(nil) })
	const firstKey = "ccccccjlkgjlhvnivbbfklgertbtfdhilfvdltrthntv"
	const secondKey = "ccccccbtrvbuhvnivbbfklgertbtfdhilfvdltrthntv"

	first, err := twofactor.Enroll(ctx, alice, twofactor.EnrollInput{Method: models.TwoFactorMethodYubikeyOTP, Token: firstKey})
	if err != nil {
		t.Fatalf("Enroll first key: %v", err)
	}
	if len(first.RecoveryCodes) != 6 {
		t.Fatalf("first enrollment should return six codes, got %d", len(first.RecoveryCodes))
	}
	user, err := models.GetUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	second, err := twofactor.Enroll(ctx, user, twofactor.EnrollInput{Method: models.TwoFactorMethodYubikeyOTP, Token: secondKey})
	if err != nil {
		t.Fatalf("Enroll second key: %v", err)
	}
	if second.RecoveryCodes != nil {
		t.Fatalf("second enrollment should not return codes, got %v", second.RecoveryCodes)
	}
	if _, err := twofactor.Enroll(ctx, user, twofactor.EnrollInput{Method: models.TwoFactorMethodYubikeyOTP, Token: secondKey}); !utils.IsErrorCode(err, utils.ErrorCodeValidationFailed) {
		t.Fatalf("the same device twice should fail, got %v", err)
	}
	user, err = models.GetUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if utils.MatchHashedSecret(user.RecoveryCodeHashes(), first.RecoveryCodes[0]) < 0 {
		t.Fatalf("the first codes should still be stored")
	}

	// 11) Removal is all or nothing.
	if _, err := models.RemoveTwoFactorMethods(ctx, alice.ID, []int{first.Method.ID, second.Method.ID + 1000}); !utils.IsErrorCode(err, utils.ErrorCodeNotFound) {
		t.Fatalf("an unknown method should fail with NotFound, got %v", err)
	}
	if count, err := models.CountTwoFactorMethods(ctx, alice.ID); err != nil || count != 2 {
		t.Fatalf("nothing should be removed on failure, got %d %v", count, err)
	}
	stale := user
	remaining, err := models.RemoveTwoFactorMethods(ctx, alice.ID, []int{first.Method.ID, second.Method.ID})
	if err != nil || remaining != 0 {
		t.Fatalf("RemoveTwoFactorMethods: %d %v", remaining, err)
	}
	if user, err = models.GetUser(ctx, alice.ID); err != nil || user.HasRecoveryCodes() {
		t.Fatalf("codes should be cleared with the last method (%v)", err)
	}

	// an outdated user still gets fresh codes once the stored ones are gone
	if !stale.HasRecoveryCodes() {
		t.Fatalf("stale user should still show codes")
	}
	again, err := twofactor.Enroll(ctx, stale, twofactor.EnrollInput{Method: models.TwoFactorMethodYubikeyOTP, Token: firstKey})
	if err != nil {
		t.Fatalf("Enroll again: %v", err)
	}
	if len(again.RecoveryCodes) != 6 {
		t.Fatalf("re-enrollment without stored codes should return six codes, got %d", len(again.RecoveryCodes))
	}
	if user, err = models.GetUser(ctx, alice.ID); err != nil || utils.MatchHashedSecret(user.RecoveryCodeHashes(), again.RecoveryCodes[0]) < 0 {
		t.Fatalf("new codes should be stored (%v)", err)
	}
}

type acceptingYubikeyVerifier struct{}

func (acceptingYubikeyVerifier) Verify(string) (*yubigo.YubiResponse, bool, error) {
	return nil, true, nil
}

func expectBalance(t *testing.T, ctx context.Context, c *models.Collective, want int64) {
	t.Helper()
	got, err := models.GetBalance(ctx, config.GetDB().WithContext(ctx), c)
	if err != nil {
		t.Fatalf("GetBalance %s: %v", c.Slug, err)
	}
	if got != want {
		t.Fatalf("balance of %s: got %d want %d", c.Slug, got, want)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("collectives-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("collectives-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=collectives_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// e.g. "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
