package common

// AuthorizationHeaderName carries the bearer access token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token in the Authorization header.
const BearerPrefix = "Bearer "

// MaxUploadSize is the default cap on a single upload, in bytes.
const MaxUploadSize int64 = 10 << 20
