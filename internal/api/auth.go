package api

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ticketTTL           = 60 * time.Second
	ticketCleanInterval = time.Minute
)

// errMissingToken is returned when a protected route has no bearer token.
var errMissingToken = errors.New("missing bearer token")

// IssueToken signs an HS256 access token for subject that expires after ttl.
// Issuer is set when non-empty.
func IssueToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// validateToken checks an "Authorization: Bearer" header against secret.
func validateToken(header, secret, issuer string) (*jwt.RegisteredClaims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ticketStore holds single-use WebSocket tickets. A ticket carries the
// subject of the bearer token it was issued against, so the connection can
// be attributed without putting the JWT in the URL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]wsTicket
}

type wsTicket struct {
	subject string
	expires time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]wsTicket)}
}

func (ts *ticketStore) issue(subject string) string {
	ticket := rand.Text()
	ts.mu.Lock()
	ts.tickets[ticket] = wsTicket{subject: subject, expires: time.Now().Add(ticketTTL)}
	ts.mu.Unlock()
	return ticket
}

// consume removes ticket and returns its subject. ok is false for unknown
// or expired tickets.
func (ts *ticketStore) consume(ticket string) (subject string, ok bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t, found := ts.tickets[ticket]
	if !found {
		return "", false
	}
	delete(ts.tickets, ticket)
	if !time.Now().Before(t.expires) {
		return "", false
	}
	return t.subject, true
}

func (ts *ticketStore) cleanExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for ticket, t := range ts.tickets {
		if now.After(t.expires) {
			delete(ts.tickets, ticket)
		}
	}
}

func (ts *ticketStore) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tickets)
}

// handleWSTicket issues a ticket for GET /api/v1/ws?ticket=...
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     s.tickets.issue(subject(r.Context())),
		"expires_in": int(ticketTTL.Seconds()),
	})
}

func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketCleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
		}
	}
}
