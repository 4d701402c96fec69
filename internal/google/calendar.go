package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tablebook/internal/config"
	"tablebook/internal/models"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var errNoAccessToken = errors.New("calendar: access token is required")

// CalendarService inserts reservations into a holder's primary Google calendar.
type CalendarService struct {
	service *calendar.Service
	summary string
}

func NewCalendarService(ctx context.Context, summary string, opts ...option.ClientOption) (*CalendarService, error) {
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	if summary == "" {
		summary = models.CalendarSummary
	}
	return &CalendarService{service: srv, summary: summary}, nil
}

// Insert creates one event in the calendar identified by owner's email.
func (s *CalendarService) Insert(ctx context.Context, ev models.BookingEvent, owner string) error {
	event := &calendar.Event{
		Summary:     s.summary,
		Description: fmt.Sprintf("Table number: %d", ev.TableNumber),
		Start: &calendar.EventDateTime{
			DateTime: ev.Start.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: ev.End.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
	}

	if _, err := s.service.Events.Insert(owner, event).Context(ctx).Do(); err != nil {
		return fmt.Errorf("insert calendar event: %w", err)
	}
	return nil
}

// CalendarFactory builds a CalendarService per caller from the OAuth access
// token the caller presented.
type CalendarFactory struct {
	oauth   *oauth2.Config
	summary string
	opts    []option.ClientOption
}

// NewCalendarFactory uses the client credentials from cfg when present so
// expired tokens can be refreshed. Extra opts are appended to every service.
func NewCalendarFactory(cfg config.CalendarConfig, opts ...option.ClientOption) *CalendarFactory {
	f := &CalendarFactory{summary: cfg.Summary, opts: opts}
	if cfg.ClientID != "" {
		f.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{calendar.CalendarEventsScope},
		}
	}
	return f
}

// ForToken returns a calendar acting on behalf of the token's owner.
// Inserts run after the request has finished, so the token source is bound
// to the background context.
func (f *CalendarFactory) ForToken(accessToken string) (*CalendarService, error) {
	if accessToken == "" {
		return nil, errNoAccessToken
	}
	ctx := context.Background()
	token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}

	var ts oauth2.TokenSource
	if f.oauth != nil {
		ts = f.oauth.TokenSource(ctx, token)
	} else {
		ts = oauth2.StaticTokenSource(token)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}, f.opts...)
	return NewCalendarService(ctx, f.summary, opts...)
}
