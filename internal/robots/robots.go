// Package robots decides whether a user-supplied URL may be fetched: it
// honours the site's robots.txt for our user agent and refuses private or
// loopback hosts.
package robots

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/postforge/internal/apperr"
)

// DefaultTTL is how long parsed rules are reused per host.
const DefaultTTL = 30 * time.Minute

// FailureTTL bounds how long a 5xx answer keeps a host disallowed.
const FailureTTL = time.Minute

const maxRobotsBytes = 512 * 1024

type Rules struct {
	Groups []Group
}

type Group struct {
	Agents   []string
	Allow    []string
	Disallow []string
}

// Manager fetches and caches robots.txt rules in memory.
type Manager struct {
	HTTPClient        *http.Client
	UserAgent         string
	TTL               time.Duration
	AllowPrivateHosts bool

	mu  sync.Mutex
	mem map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	rules  Rules
	expiry time.Time
}

// Allowed reports whether rawURL may be fetched by UserAgent. Private hosts
// are rejected with apperr.ExtractionFailed. An unreachable robots.txt
// yields ExtractionTimeout or ExtractionFailed and is not cached.
func (m *Manager) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false, apperr.E(apperr.ExtractionFailed, "unsupported URL: %q", rawURL)
	}
	if !m.AllowPrivateHosts && isLocalOrPrivateHost(u.Hostname()) {
		return false, apperr.E(apperr.ExtractionFailed, "private host not allowed: %s", u.Hostname())
	}
	robotsURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()
	rules, err := m.rulesFor(ctx, robotsURL)
	if err != nil {
		return false, err
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return rules.IsAllowed(m.UserAgent, path), nil
}

func (m *Manager) rulesFor(ctx context.Context, robotsURL string) (Rules, error) {
	m.mu.Lock()
	if m.now == nil {
		m.now = time.Now
	}
	if m.mem == nil {
		m.mem = make(map[string]memEntry)
	}
	if ent, ok := m.mem[robotsURL]; ok && m.now().Before(ent.expiry) {
		m.mu.Unlock()
		return ent.rules, nil
	}
	m.mu.Unlock()

	rules, ttl, err := m.fetch(ctx, robotsURL)
	if err != nil {
		return Rules{}, err
	}
	if ttl <= 0 {
		ttl = m.TTL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	m.mem[robotsURL] = memEntry{rules: rules, expiry: m.now().Add(ttl)}
	m.mu.Unlock()
	return rules, nil
}

// fetch returns the rules to cache and an optional TTL override. A missing
// file (404 and other 4xx) allows everything and 401/403 disallow the host.
// 5xx disallows it for FailureTTL only. Transport failures are returned and
// never cached.
func (m *Manager) fetch(ctx context.Context, robotsURL string) (Rules, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return Rules{}, 0, apperr.Wrap(apperr.ExtractionFailed, err, "robots.txt request")
	}
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}
	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", robotsURL).Msg("robots.txt unreachable")
		return Rules{}, 0, classifyFetchError(ctx, err, robotsURL)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return disallowAll(), 0, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Rules{}, 0, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		log.Debug().Int("status", resp.StatusCode).Str("url", robotsURL).Msg("robots.txt unavailable; disallowing host briefly")
		return disallowAll(), FailureTTL, nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return Rules{}, 0, classifyFetchError(ctx, err, robotsURL)
	}
	return Parse(string(data)), 0, nil
}

func classifyFetchError(ctx context.Context, err error, robotsURL string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return apperr.Wrap(apperr.ExtractionTimeout, ctxErr, "robots.txt "+robotsURL)
		}
		return apperr.Wrap(apperr.ExtractionFailed, ctxErr, "robots.txt "+robotsURL)
	}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return apperr.Wrap(apperr.ExtractionTimeout, err, "robots.txt "+robotsURL+" timed out")
	}
	return apperr.Wrap(apperr.ExtractionFailed, err, "robots.txt "+robotsURL)
}

func disallowAll() Rules {
	return Rules{Groups: []Group{{Agents: []string{"*"}, Disallow: []string{"/"}}}}
}

// Parse reads robots.txt text. Unknown directives are ignored.
func Parse(text string) Rules {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var groups []Group
	current := Group{}
	flush := func() {
		if len(current.Agents) == 0 && len(current.Allow) == 0 && len(current.Disallow) == 0 {
			return
		}
		groups = append(groups, current)
		current = Group{}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		switch key {
		case "user-agent", "useragent":
			if len(current.Agents) > 0 && (len(current.Allow) > 0 || len(current.Disallow) > 0) {
				flush()
			}
			current.Agents = append(current.Agents, strings.ToLower(val))
		case "allow":
			current.Allow = append(current.Allow, val)
		case "disallow":
			current.Disallow = append(current.Disallow, val)
		}
	}
	flush()
	return Rules{Groups: groups}
}

// IsAllowed evaluates path (which may include a query string) for userAgent.
//
// The most specific matching User-agent group applies, with "*" losing to any
// named match. Within it the longest matching Allow or Disallow pattern wins
// and Allow wins ties. No match means allowed.
func (r Rules) IsAllowed(userAgent string, path string) bool {
	idx := r.selectGroupIndex(userAgent)
	if idx < 0 {
		return true
	}
	grp := r.Groups[idx]

	bestScore := -1
	bestAllow := true
	evaluate := func(patterns []string, isAllow bool) {
		for _, p := range patterns {
			if p == "" {
				continue
			}
			if patternMatches(p, path) {
				score := patternSpecificity(p)
				if score > bestScore || (score == bestScore && isAllow && !bestAllow) {
					bestScore = score
					bestAllow = isAllow
				}
			}
		}
	}
	evaluate(grp.Disallow, false)
	evaluate(grp.Allow, true)
	if bestScore == -1 {
		return true
	}
	return bestAllow
}

func (r Rules) selectGroupIndex(userAgent string) int {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	bestIdx, bestScore := -1, -1
	for i, g := range r.Groups {
		for _, a := range g.Agents {
			token := strings.TrimSpace(a)
			var score int
			switch {
			case token == "":
				continue
			case token == "*":
				score = 0
			case strings.Contains(ua, token):
				score = len(token)
			default:
				continue
			}
			if score > bestScore {
				bestScore, bestIdx = score, i
			}
		}
	}
	return bestIdx
}

// patternMatches supports '*' wildcards and a trailing '$' end anchor.
// Matching is anchored at the start of the path.
func patternMatches(pattern, path string) bool {
	anchorEnd := strings.HasSuffix(pattern, "$")
	p := strings.TrimSuffix(pattern, "$")
	var b strings.Builder
	b.WriteString("^")
	for _, part := range strings.Split(p, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	expr := strings.TrimSuffix(b.String(), ".*")
	if anchorEnd {
		expr += "$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

func patternSpecificity(pattern string) int {
	return len(strings.ReplaceAll(strings.TrimSuffix(pattern, "$"), "*", ""))
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.ToLower(strings.Trim(strings.TrimSpace(host), "[]"))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") || h == "localhost.localdomain" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
			ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
	}
	return false
}
