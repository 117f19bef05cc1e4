package common

// SessionCookieName is the cookie carrying the opaque session identifier.
const SessionCookieName = "folio_session"

// CSRFHeaderName is the header a state-changing request must echo the
// CSRF token in.
const CSRFHeaderName = "X-CSRF-Token"
