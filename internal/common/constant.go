package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// admin access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// SessionCookieName is the browser cookie holding the session token.
const SessionCookieName = "gitalite_session"

// SessionTokenBytes is the number of random bytes in a session token.
// The hex-encoded token is twice as long.
const SessionTokenBytes = 32
