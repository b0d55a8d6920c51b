package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/gatehouse-idp/gatehouse/internal/interaction"
)

// LDAPConfig describes the directory used as an alternative credential
// backend for local logins.
type LDAPConfig struct {
	Host         string
	Port         int
	UseTLS       bool
	SkipVerify   bool
	BindDN       string
	BindPassword string
	BaseDN       string
	UserFilter   string
	// Attribute names for the mapped identity fields.
	UsernameAttribute    string
	EmailAttribute       string
	DisplayNameAttribute string

	Timeout time.Duration
}

// DirectoryStore verifies credentials with an LDAP bind. It satisfies the
// same contract as the database-backed store, so the two are interchangeable
// behind the interaction layer.
type DirectoryStore struct {
	cfg     LDAPConfig
	timeout time.Duration
}

// NewDirectoryStore constructs a directory-backed credential store.
func NewDirectoryStore(cfg LDAPConfig) (*DirectoryStore, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("directory store: host is required")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("directory store: port must be positive")
	}
	if strings.TrimSpace(cfg.BaseDN) == "" {
		return nil, errors.New("directory store: base dn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DirectoryStore{cfg: cfg, timeout: timeout}, nil
}

// Verify binds to the directory as the resolved user. All directory failures
// collapse into ErrInvalidCredentials so callers cannot probe the directory.
func (s *DirectoryStore) Verify(ctx context.Context, username, password string) (*interaction.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, interaction.ErrInvalidCredentials
	}

	conn, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("directory store: dial: %w", err)
	}
	defer conn.Close()

	entry, err := s.findEntry(conn, username)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, interaction.ErrInvalidCredentials
	}

	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, interaction.ErrInvalidCredentials
	}

	return s.mapEntry(entry, username), nil
}

// FindByName looks the user up without authenticating, or (nil, nil) if the
// directory has no matching entry.
func (s *DirectoryStore) FindByName(ctx context.Context, username string) (*interaction.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}

	conn, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("directory store: dial: %w", err)
	}
	defer conn.Close()

	entry, err := s.findEntry(conn, username)
	if err != nil || entry == nil {
		return nil, err
	}
	return s.mapEntry(entry, username), nil
}

func (s *DirectoryStore) dial() (*ldap.Conn, error) {
	scheme := "ldap"
	dialOpts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: s.timeout})}
	if s.cfg.UseTLS {
		scheme = "ldaps"
		dialOpts = append(dialOpts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: s.cfg.SkipVerify}))
	}

	conn, err := ldap.DialURL(fmt.Sprintf("%s://%s:%d", scheme, s.cfg.Host, s.cfg.Port), dialOpts...)
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(s.timeout)
	return conn, nil
}

func (s *DirectoryStore) findEntry(conn *ldap.Conn, username string) (*ldap.Entry, error) {
	if strings.TrimSpace(s.cfg.BindDN) != "" {
		if err := conn.Bind(s.cfg.BindDN, s.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("directory store: bind service account: %w", err)
		}
	}

	filter := s.cfg.UserFilter
	if filter == "" {
		filter = "(|(uid=%s)(sAMAccountName=%s)(mail=%s))"
	}
	filter = strings.ReplaceAll(filter, "%s", ldap.EscapeFilter(username))

	request := ldap.NewSearchRequest(
		s.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2,
		0,
		false,
		filter,
		s.attributes(),
		nil,
	)

	result, err := conn.Search(request)
	if err != nil {
		return nil, fmt.Errorf("directory store: search: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, nil
	}
	return result.Entries[0], nil
}

func (s *DirectoryStore) attributes() []string {
	attrs := []string{"dn"}
	for _, attr := range []string{s.cfg.UsernameAttribute, s.cfg.EmailAttribute, s.cfg.DisplayNameAttribute} {
		if attr != "" {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

func (s *DirectoryStore) mapEntry(entry *ldap.Entry, fallbackUsername string) *interaction.User {
	username := fallbackUsername
	if s.cfg.UsernameAttribute != "" {
		if value := entry.GetAttributeValue(s.cfg.UsernameAttribute); value != "" {
			username = value
		}
	}

	displayName := username
	if s.cfg.DisplayNameAttribute != "" {
		if value := entry.GetAttributeValue(s.cfg.DisplayNameAttribute); value != "" {
			displayName = value
		}
	}

	return &interaction.User{
		SubjectID:   entry.DN,
		Username:    username,
		DisplayName: displayName,
	}
}
