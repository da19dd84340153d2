package accountmap

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// dialTimeout bounds how long a single LDAP connection attempt may
// take before Lookup gives up.
const dialTimeout = 5 * time.Second

// LDAPMap resolves destination usernames by searching an LDAP
// directory for an entry whose sourceAttr matches the source identity,
// returning the value of destAttr. A network error or "not found"
// result is treated as an absent mapping, not a hard failure.
type LDAPMap struct {
	url        string
	bindDN     string
	bindPass   string
	baseDN     string
	sourceAttr string
	destAttr   string
}

// NewLDAPMap constructs an LDAPMap. Construction is side-effect-free:
// no connection is made until Lookup is called.
func NewLDAPMap(url, bindDN, bindPass, baseDN, sourceAttr, destAttr string) *LDAPMap {
	return &LDAPMap{
		url:        url,
		bindDN:     bindDN,
		bindPass:   bindPass,
		baseDN:     baseDN,
		sourceAttr: sourceAttr,
		destAttr:   destAttr,
	}
}

// Lookup implements Map.
func (m *LDAPMap) Lookup(ctx context.Context, src string) (string, bool, error) {
	conn, err := ldap.DialURL(m.url, ldap.DialWithDialer(&net.Dialer{Timeout: dialTimeout}))
	if err != nil {
		return "", false, nil //nolint:nilerr // network failure maps to absent, per original behavior
	}
	defer conn.Close()

	if m.bindDN != "" {
		if err := conn.Bind(m.bindDN, m.bindPass); err != nil {
			return "", false, nil //nolint:nilerr
		}
	}

	req := ldap.NewSearchRequest(
		m.baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(%s=%s)", m.sourceAttr, ldap.EscapeFilter(src)),
		[]string{m.destAttr},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil || len(result.Entries) == 0 {
		return "", false, nil
	}

	dest := result.Entries[0].GetAttributeValue(m.destAttr)
	if dest == "" {
		return "", false, nil
	}
	return dest, true, nil
}
