package metricsclient

import "net/http"

// authRoundTripper injects the tenant header and auth credentials into
// every outbound Prometheus HTTP request, per spec.md §4.1 and §6.
type authRoundTripper struct {
	next http.RoundTripper
	auth AuthConfig
}

// NewAuthTransport wraps next so every request carries auth's tenant
// header, bearer/basic credentials, and any custom headers.
func NewAuthTransport(next http.RoundTripper, auth AuthConfig) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &authRoundTripper{next: next, auth: auth}
}

func (rt *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if rt.auth.TenantID != "" {
		r.Header.Set("X-Scope-OrgID", rt.auth.TenantID)
	}
	if rt.auth.BearerToken != "" {
		r.Header.Set("Authorization", "Bearer "+rt.auth.BearerToken)
	} else if rt.auth.BasicUser != "" {
		r.SetBasicAuth(rt.auth.BasicUser, rt.auth.BasicPass)
	}
	for k, v := range rt.auth.Headers {
		r.Header.Set(k, v)
	}
	return rt.next.RoundTrip(r)
}
