package api

// Record is an encrypted vault record on the wire. The server never sees
// anything but these opaque byte fields.
type Record struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
	Nonce      []byte `json:"nonce"`
	UpdatedAt  int64  `json:"updated_at"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type PreLoginRequest struct {
	Email string `json:"email"`
}

// PreLoginResponse carries the account's derivation parameters (defaults for
// unknown emails) and the server's X25519 public key, hex encoded.
type PreLoginResponse struct {
	Memory          uint32 `json:"memory"`
	Iterations      uint32 `json:"iterations"`
	Parallelism     uint8  `json:"parallelism"`
	ServerPublicKey string `json:"server_public_key"`
}

type RegisterRequest struct {
	Email        string `json:"email"`
	PublicKey    string `json:"public_key"`
	Memory       uint32 `json:"memory"`
	Iterations   uint32 `json:"iterations"`
	Parallelism  uint8  `json:"parallelism"`
	Verifier     []byte `json:"verifier"`
	PasswordHint string `json:"password_hint,omitempty"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Verifier []byte `json:"verifier"`
}

type LoginResponse struct {
	UserID       string `json:"user_id"`
	PublicKey    string `json:"public_key"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AllRecordsRequest struct{}

type AllRecordsResponse struct {
	Records    []*Record `json:"records"`
	ServerTime int64     `json:"server_time"`
}

type SyncSinceRequest struct {
	Since int64 `json:"since"`
}

// SyncSinceResponse lists every live id plus the records changed at or after
// Since. ServerTime is read before the query runs.
type SyncSinceResponse struct {
	LiveIDs    []string  `json:"live_ids"`
	Changed    []*Record `json:"changed"`
	ServerTime int64     `json:"server_time"`
}

type InsertRecordRequest struct {
	Record *Record `json:"record"`
}

type InsertRecordResponse struct {
	UpdatedAt int64 `json:"updated_at"`
}

type UpdateRecordRequest struct {
	Record *Record `json:"record"`
}

type UpdateRecordResponse struct {
	UpdatedAt int64 `json:"updated_at"`
}

type DeleteRecordRequest struct {
	ID string `json:"id"`
}

type DeleteRecordResponse struct{}
