package notify

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"dosewatch/internal/dose"
	"dosewatch/internal/storage"
)

// SMSConfig configures the Twilio-backed SMS channel. A missing account
// or sender number disables the channel entirely.
type SMSConfig struct {
	Enabled    bool
	AccountSID string
	AuthToken  string
	From       string
	RatePerSec int
}

type smsAPI interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// SMS sends transition messages over Twilio. Sends are token-bucket
// rate limited; an exhausted bucket fails the send instead of blocking
// the evaluation pass (the transition itself still commits).
type SMS struct {
	mu      sync.Mutex
	cfg     SMSConfig
	limiter *rate.Limiter

	api smsAPI
}

func NewSMS(cfg SMSConfig) *SMS {
	s := &SMS{}
	if strings.TrimSpace(cfg.AccountSID) != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		s.api = client.Api
	}
	s.Apply(cfg)
	return s
}

// Apply updates the runtime knobs (enabled flag, sender, rate limit).
// Credential changes require a restart.
func (s *SMS) Apply(cfg SMSConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

func (s *SMS) Name() string { return "sms" }

func (s *SMS) Configured(o storage.Owner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.api != nil &&
		strings.TrimSpace(s.cfg.From) != "" &&
		strings.TrimSpace(o.Phone) != ""
}

func (s *SMS) Send(ctx context.Context, o storage.Owner, kind dose.Kind, msg string) error {
	_ = ctx
	_ = kind
	s.mu.Lock()
	from := s.cfg.From
	lim := s.limiter
	api := s.api
	s.mu.Unlock()

	if api == nil {
		return errors.New("sms not configured")
	}
	if !lim.Allow() {
		return errors.New("sms rate limit exceeded")
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(strings.TrimSpace(o.Phone))
	params.SetFrom(from)
	params.SetBody(msg)
	_, err := api.CreateMessage(params)
	return err
}
