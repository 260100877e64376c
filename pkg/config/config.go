package config

import (
	"time"
)

type DB struct {
	Url string `envconfig:"URL"`
}

type Jwt struct {
	Secret string        `envconfig:"SECRET" required:"true"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"24h"`
}

type Redis struct {
	URL          string        `envconfig:"URL" default:"redis://localhost:6379/0"`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" default:""`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

type RateLimit struct {
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"100"`
	Window      time.Duration `envconfig:"WINDOW" default:"1m"`
}

// SMSProvider tunes the outbound dispatcher and the number-provider client.
type SMSProvider struct {
	ApiKey           string        `envconfig:"API_KEY" required:"true"`
	ApiUrl           string        `envconfig:"API_URL" default:"https://api.sms-provider.example/stubs/handler_api.php"`
	Currency         string        `envconfig:"CURRENCY" default:"USD"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	ReadConcurrency  int           `envconfig:"READ_CONCURRENCY" default:"5"`
	ReadSpacing      time.Duration `envconfig:"READ_SPACING" default:"200ms"`
	WriteSpacing     time.Duration `envconfig:"WRITE_SPACING" default:"1s"`
	MaxAttempts      int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	BackoffCap       float64       `envconfig:"BACKOFF_CAP" default:"6.0"`
	BackoffDecay     float64       `envconfig:"BACKOFF_DECAY" default:"0.25"`
	JitterFraction   float64       `envconfig:"JITTER_FRACTION" default:"0.2"`
	SevereCooldown   time.Duration `envconfig:"SEVERE_COOLDOWN" default:"30s"`
	ActivationExpiry time.Duration `envconfig:"ACTIVATION_EXPIRY" default:"20m"`
}

// Payment configures the payment-provider client and webhook verification.
type Payment struct {
	SecretKey     string        `envconfig:"SECRET_KEY" required:"true"`
	WebhookSecret string        `envconfig:"WEBHOOK_SECRET" required:"true"`
	ApiUrl        string        `envconfig:"API_URL" default:"https://api.paygate.example"`
	HTTPTimeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
	CallbackURL   string        `envconfig:"CALLBACK_URL" default:"http://localhost:3000/payment/callback"`
	DepositExpiry time.Duration `envconfig:"DEPOSIT_EXPIRY" default:"30m"`
	MinDeposit    float64       `envconfig:"MIN_DEPOSIT" default:"1.00"`
}

// Pricing configures the platform markup policy and the price cache.
type Pricing struct {
	MarkupMultiplier float64       `envconfig:"MARKUP_MULTIPLIER" default:"2.0"`
	CacheTTL         time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	CachePrefix      string        `envconfig:"CACHE_PREFIX" default:"price:"`
}

// Refund policies for cancelled purchases.
const (
	RefundPolicyFull    = "full"
	RefundPolicyDecayed = "decayed"
)

// Cancellation configures the refund path for number purchases.
// RefundPolicy is "full" or "decayed"; RefundFraction applies to "decayed" only.
type Cancellation struct {
	DwellTime      time.Duration `envconfig:"DWELL_TIME" default:"4m"`
	RefundPolicy   string        `envconfig:"REFUND_POLICY" default:"full"`
	RefundFraction float64       `envconfig:"REFUND_FRACTION" default:"0.5"`
}

// Exchange holds the static conversion table into the settlement currency.
// Rate sourcing is out of scope; rates are operator supplied.
type Exchange struct {
	SettlementCurrency string             `envconfig:"SETTLEMENT_CURRENCY" default:"USD"`
	Rates              map[string]float64 `envconfig:"RATES" default:"USD:1.0"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"json"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[numgate]"`
}

type Server struct {
	Scheme string `envconfig:"SCHEME" default:"http"`
	Host   string `envconfig:"HOST" default:"localhost"`
	Port   int    `envconfig:"PORT" default:"3000"`
}

type App struct {
	Env          string        `envconfig:"APP_ENV" default:"development"`
	Server       *Server       `envconfig:"SERVER"`
	Log          *Log          `envconfig:"LOG"`
	DB           *DB           `envconfig:"DATABASE"`
	Jwt          *Jwt          `envconfig:"JWT"`
	Redis        *Redis        `envconfig:"REDIS"`
	RateLimit    *RateLimit    `envconfig:"RATE_LIMIT"`
	SMSProvider  *SMSProvider  `envconfig:"SMS_PROVIDER"`
	Payment      *Payment      `envconfig:"PAYMENT"`
	Pricing      *Pricing      `envconfig:"PRICING"`
	Cancellation *Cancellation `envconfig:"CANCELLATION"`
	Exchange     *Exchange     `envconfig:"EXCHANGE"`
}
