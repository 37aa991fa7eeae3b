package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"newsletter/internal/infra"
	"newsletter/internal/models/db_models"
	"newsletter/internal/models/queue_models"
	"newsletter/internal/models/request_models"
	"newsletter/internal/repositories"
	"newsletter/pkg/utils"
)

const testFrontendURL = "https://news.example.com"

type subscriptionFixture struct {
	db         *gorm.DB
	svc        SubscriptionServiceInterface
	tokenRepo  repositories.TokenRepository
	outboxRepo repositories.OutboxRepository
}

func newSubscriptionFixture(t *testing.T) *subscriptionFixture {
	t.Helper()

	db := openTestDB(t)
	subscriberRepo := repositories.NewSubscriberRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)
	outboxRepo := repositories.NewOutboxRepository(db)
	tokenService := NewTokenService(tokenRepo, subscriberRepo)

	svc := NewSubscriptionService(
		db, subscriberRepo, tokenRepo, tokenService,
		NewOutboxWriter(outboxRepo), staticCipher{}, testFrontendURL)

	return &subscriptionFixture{
		db:         db,
		svc:        svc,
		tokenRepo:  tokenRepo,
		outboxRepo: outboxRepo,
	}
}

// failingOutbox simulates the queue collaborator being unreachable at commit
// time.
type failingOutbox struct{}

func (failingOutbox) Enqueue(context.Context, *gorm.DB, queue_models.EmailJob) error {
	return utils.ErrDispatchFailure
}

func (f *subscriptionFixture) outboxJobs(t *testing.T) []queue_models.EmailJob {
	t.Helper()

	pending, err := f.outboxRepo.FindPending(context.Background(), 100)
	require.NoError(t, err)

	jobs := make([]queue_models.EmailJob, 0, len(pending))
	for _, message := range pending {
		var job queue_models.EmailJob
		require.NoError(t, json.Unmarshal(message.Payload, &job))
		jobs = append(jobs, job)
	}
	return jobs
}

// tokenFromURL pulls the plaintext token out of a built link such as
// https://news.example.com/verify-email?token=abc.
func tokenFromURL(t *testing.T, link string) string {
	t.Helper()

	_, token, found := strings.Cut(link, "?token=")
	require.True(t, found, "no token in %q", link)
	return token
}

func (f *subscriptionFixture) subscribeAndFetchVerifyToken(t *testing.T, email string) string {
	t.Helper()

	_, err := f.svc.Subscribe(context.Background(), email)
	require.NoError(t, err)

	jobs := f.outboxJobs(t)
	for _, job := range jobs {
		if job.EventType == queue_models.EventVerifyEmail && job.Email == email {
			return tokenFromURL(t, job.Data["verificationUrl"])
		}
	}
	t.Fatalf("no verify-email job for %s", email)
	return ""
}

func TestSubscribe_CreatesSubscriberTokenAndOutboxRow(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()

	message, err := f.svc.Subscribe(ctx, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, "Please verify your email.", message)

	var subscriber db_models.Subscriber
	require.NoError(t, f.db.First(&subscriber, "email = ?", "a@example.com").Error)
	require.True(t, subscriber.Subscribed)
	require.False(t, subscriber.EmailVerified)
	require.Nil(t, subscriber.FirstName)

	var preferences db_models.Preferences
	require.NoError(t, json.Unmarshal(subscriber.Preferences, &preferences))
	require.True(t, preferences.Updates)
	require.True(t, preferences.Promotions)

	var tokens []db_models.Token
	require.NoError(t, f.db.Where("subscriber_id = ?", subscriber.ID).Find(&tokens).Error)
	require.Len(t, tokens, 1)
	require.Equal(t, db_models.TokenTypeEmailVerification, tokens[0].TokenType)
	require.False(t, tokens[0].Used)
	require.NotNil(t, tokens[0].ExpiresAt)
	require.WithinDuration(t, time.Now().Add(tokenTTL), *tokens[0].ExpiresAt, time.Minute)

	jobs := f.outboxJobs(t)
	require.Len(t, jobs, 1)
	require.Equal(t, queue_models.EventVerifyEmail, jobs[0].EventType)
	require.Equal(t, "a@example.com", jobs[0].Email)

	// The link carries the plaintext whose hash is the stored key.
	plaintext := tokenFromURL(t, jobs[0].Data["verificationUrl"])
	require.True(t, strings.HasPrefix(jobs[0].Data["verificationUrl"], testFrontendURL+"/verify-email?token="))
	require.Equal(t, tokens[0].TokenHash, utils.HashToken(plaintext))
}

func TestSubscribe_DuplicateEmail(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "a@example.com")
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, "a@example.com")
	require.ErrorIs(t, err, utils.ErrDuplicateEmail)

	var count int64
	require.NoError(t, f.db.Model(&db_models.Subscriber{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSubscribe_DispatchFailureRollsBackEverything(t *testing.T) {
	db := openTestDB(t)
	subscriberRepo := repositories.NewSubscriberRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)
	tokenService := NewTokenService(tokenRepo, subscriberRepo)

	svc := NewSubscriptionService(
		db, subscriberRepo, tokenRepo, tokenService,
		failingOutbox{}, staticCipher{}, testFrontendURL)

	_, err := svc.Subscribe(context.Background(), "a@example.com")
	require.ErrorIs(t, err, utils.ErrDispatchFailure)

	// No partial state survives the rollback.
	var subscribers, tokens int64
	require.NoError(t, db.Model(&db_models.Subscriber{}).Count(&subscribers).Error)
	require.NoError(t, db.Model(&db_models.Token{}).Count(&tokens).Error)
	require.EqualValues(t, 0, subscribers)
	require.EqualValues(t, 0, tokens)
}

func TestVerifyEmail_TransitionsStateAndIssuesFollowupTokens(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	verifyToken := f.subscribeAndFetchVerifyToken(t, "a@example.com")

	message, err := f.svc.VerifyEmail(ctx, verifyToken)
	require.NoError(t, err)
	require.Equal(t, "Email verified successfully. Please check email.", message)

	var subscriber db_models.Subscriber
	require.NoError(t, f.db.First(&subscriber, "email = ?", "a@example.com").Error)
	require.True(t, subscriber.EmailVerified)

	var tokens []db_models.Token
	require.NoError(t, f.db.Where("subscriber_id = ?", subscriber.ID).Find(&tokens).Error)
	require.Len(t, tokens, 3)

	byType := map[db_models.TokenType]db_models.Token{}
	for _, token := range tokens {
		byType[token.TokenType] = token
	}

	require.True(t, byType[db_models.TokenTypeEmailVerification].Used)

	completion := byType[db_models.TokenTypeAccountCompletion]
	require.False(t, completion.Used)
	require.NotNil(t, completion.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(tokenTTL), *completion.ExpiresAt, time.Minute)

	preferences := byType[db_models.TokenTypePreferences]
	require.False(t, preferences.Used)
	require.Nil(t, preferences.ExpiresAt)
	require.NotNil(t, preferences.EncryptedToken)

	// The welcome message carries both follow-up links; their plaintexts hash
	// to the stored keys, and the preferences ciphertext recovers its own.
	jobs := f.outboxJobs(t)
	require.Len(t, jobs, 2)
	var welcome queue_models.EmailJob
	foundWelcome := false
	for _, job := range jobs {
		if job.EventType == queue_models.EventWelcomeEmail {
			welcome, foundWelcome = job, true
		}
	}
	require.True(t, foundWelcome)
	require.Equal(t, "a@example.com", welcome.Email)

	completionPlain := tokenFromURL(t, welcome.Data["accountCompletionUrl"])
	require.Equal(t, completion.TokenHash, utils.HashToken(completionPlain))

	preferencesPlain := tokenFromURL(t, welcome.Data["preferencesUrl"])
	require.Equal(t, preferences.TokenHash, utils.HashToken(preferencesPlain))
	require.Equal(t, "enc:"+preferencesPlain, *preferences.EncryptedToken)
}

func TestVerifyEmail_ReplayIsIdempotent(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	verifyToken := f.subscribeAndFetchVerifyToken(t, "a@example.com")

	_, err := f.svc.VerifyEmail(ctx, verifyToken)
	require.NoError(t, err)

	var tokensBefore int64
	require.NoError(t, f.db.Model(&db_models.Token{}).Count(&tokensBefore).Error)
	jobsBefore := len(f.outboxJobs(t))

	// Clicking the link again succeeds but changes nothing and sends nothing.
	message, err := f.svc.VerifyEmail(ctx, verifyToken)
	require.NoError(t, err)
	require.NotEmpty(t, message)

	var tokensAfter int64
	require.NoError(t, f.db.Model(&db_models.Token{}).Count(&tokensAfter).Error)
	require.Equal(t, tokensBefore, tokensAfter)
	require.Equal(t, jobsBefore, len(f.outboxJobs(t)))
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	f := newSubscriptionFixture(t)

	_, err := f.svc.VerifyEmail(context.Background(), "never-issued")
	require.ErrorIs(t, err, utils.ErrInvalidToken)
}

func (f *subscriptionFixture) verifiedSubscriber(t *testing.T, email string) (completionToken, preferencesToken string) {
	t.Helper()

	verifyToken := f.subscribeAndFetchVerifyToken(t, email)
	_, err := f.svc.VerifyEmail(context.Background(), verifyToken)
	require.NoError(t, err)

	for _, job := range f.outboxJobs(t) {
		if job.EventType == queue_models.EventWelcomeEmail && job.Email == email {
			return tokenFromURL(t, job.Data["accountCompletionUrl"]),
				tokenFromURL(t, job.Data["preferencesUrl"])
		}
	}
	t.Fatalf("no welcome-email job for %s", email)
	return "", ""
}

func TestCheckAccountToken_ReportsWithoutConsuming(t *testing.T) {
	f := newSubscriptionFixture(t)
	completionToken, _ := f.verifiedSubscriber(t, "a@example.com")

	result, err := f.svc.CheckAccountToken(context.Background(), completionToken)
	require.NoError(t, err)
	require.False(t, result.IsExpired)
	require.False(t, result.IsUsed)

	// Checking twice works; the check consumes nothing.
	result, err = f.svc.CheckAccountToken(context.Background(), completionToken)
	require.NoError(t, err)
	require.False(t, result.IsUsed)
}

func TestCompleteAccount_StoresNamesAndConsumesToken(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	completionToken, _ := f.verifiedSubscriber(t, "a@example.com")

	message, err := f.svc.CompleteAccount(ctx, completionToken, request_models.CompleteAccountRequest{
		FirstName: "Ada",
	})
	require.NoError(t, err)
	require.Equal(t, "Names successfully added.", message)

	var subscriber db_models.Subscriber
	require.NoError(t, f.db.First(&subscriber, "email = ?", "a@example.com").Error)
	require.NotNil(t, subscriber.FirstName)
	require.Equal(t, "Ada", *subscriber.FirstName)
	require.Nil(t, subscriber.LastName)

	// Single use: the second submit is refused.
	_, err = f.svc.CompleteAccount(ctx, completionToken, request_models.CompleteAccountRequest{FirstName: "Eve"})
	require.ErrorIs(t, err, utils.ErrCompletionTokenUsed)
}

func TestPreferences_ReadUpdateAndUnsubscribe(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	_, preferencesToken := f.verifiedSubscriber(t, "a@example.com")

	stored, err := f.svc.GetPreferences(ctx, preferencesToken)
	require.NoError(t, err)
	var preferences db_models.Preferences
	require.NoError(t, json.Unmarshal(stored, &preferences))
	require.True(t, preferences.Updates)
	require.True(t, preferences.Promotions)

	// Turning both off unsubscribes.
	_, err = f.svc.UpdatePreferences(ctx, preferencesToken, db_models.Preferences{})
	require.NoError(t, err)

	var subscriber db_models.Subscriber
	require.NoError(t, f.db.First(&subscriber, "email = ?", "a@example.com").Error)
	require.False(t, subscriber.Subscribed)
	require.NotNil(t, subscriber.UnsubscribedAt)

	// The link stays usable afterwards; re-enabling one preference
	// resubscribes and clears the stamp.
	_, err = f.svc.UpdatePreferences(ctx, preferencesToken, db_models.Preferences{Updates: true})
	require.NoError(t, err)

	// Re-read into a fresh struct: gorm leaves a previously set pointer
	// field untouched when the scanned column is NULL.
	subscriber = db_models.Subscriber{}
	require.NoError(t, f.db.First(&subscriber, "email = ?", "a@example.com").Error)
	require.True(t, subscriber.Subscribed)
	require.Nil(t, subscriber.UnsubscribedAt)

	stored, err = f.svc.GetPreferences(ctx, preferencesToken)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(stored, &preferences))
	require.True(t, preferences.Updates)
	require.False(t, preferences.Promotions)
}

func TestRegenerateToken_RotatesExpiredVerificationToken(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	verifyToken := f.subscribeAndFetchVerifyToken(t, "a@example.com")

	// Age the token past its deadline.
	expired := time.Now().Add(-time.Hour)
	require.NoError(t, f.db.Model(&db_models.Token{}).
		Where("token_hash = ?", utils.HashToken(verifyToken)).
		Update("expires_at", expired).Error)

	_, err := f.svc.VerifyEmail(ctx, verifyToken)
	require.ErrorIs(t, err, utils.ErrTokenExpired)

	message, err := f.svc.RegenerateToken(ctx, verifyToken, "verify-email")
	require.NoError(t, err)
	require.Equal(t, "A new link has been sent to your email.", message)

	// The old plaintext is dead, rotation happened in place.
	_, err = f.svc.VerifyEmail(ctx, verifyToken)
	require.ErrorIs(t, err, utils.ErrInvalidToken)

	var count int64
	require.NoError(t, f.db.Model(&db_models.Token{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	var job queue_models.EmailJob
	found := false
	for _, j := range f.outboxJobs(t) {
		if j.EventType == queue_models.EventRegenerateToken {
			job, found = j, true
		}
	}
	require.True(t, found)
	require.Equal(t, "verify-email", job.Data["origin"])

	// The fresh link completes the verification the expired one could not.
	newToken := tokenFromURL(t, job.Data["linkUrl"])
	require.True(t, strings.HasPrefix(job.Data["linkUrl"], testFrontendURL+"/verify-email?token="))
	_, err = f.svc.VerifyEmail(ctx, newToken)
	require.NoError(t, err)
}

func TestRegenerateToken_RejectsUnknownOrigin(t *testing.T) {
	f := newSubscriptionFixture(t)

	_, err := f.svc.RegenerateToken(context.Background(), "anything", "manage-preferences")
	require.ErrorIs(t, err, utils.ErrInvalidOrigin)
}

func TestRegenerateToken_UsedTokenStaysDead(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	verifyToken := f.subscribeAndFetchVerifyToken(t, "a@example.com")

	_, err := f.svc.VerifyEmail(ctx, verifyToken)
	require.NoError(t, err)

	_, err = f.svc.RegenerateToken(ctx, verifyToken, "verify-email")
	require.ErrorIs(t, err, utils.ErrVerificationTokenUsed)
}

func TestRecoverPreferencesLink(t *testing.T) {
	f := newSubscriptionFixture(t)
	_, preferencesToken := f.verifiedSubscriber(t, "a@example.com")

	var subscriber db_models.Subscriber
	require.NoError(t, f.db.First(&subscriber, "email = ?", "a@example.com").Error)

	link, err := f.svc.RecoverPreferencesLink(context.Background(), subscriber.ID)
	require.NoError(t, err)
	require.Equal(t, testFrontendURL+"/manage-preferences?token="+preferencesToken, link)
}

func TestQueueForEvent_RegenerateSharesVerifyQueue(t *testing.T) {
	require.Equal(t, infra.VerifyEmailQueue, infra.QueueForEvent(queue_models.EventRegenerateToken))
	require.Equal(t, infra.VerifyEmailQueue, infra.QueueForEvent(queue_models.EventVerifyEmail))
	require.Equal(t, infra.WelcomeEmailQueue, infra.QueueForEvent(queue_models.EventWelcomeEmail))
	require.Equal(t, "", infra.QueueForEvent("unknown"))
}
