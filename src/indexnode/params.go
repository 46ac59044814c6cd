package indexnode

// Network names.
const (
	MainNet = "main"
	TestNet = "test"
	RegTest = "regtest"
)

// Protocol constants shared by every network.
const (
	// BanMaxScore bounds the PoSe ban score to [-BanMaxScore, BanMaxScore].
	BanMaxScore = 5

	// CheckSeconds is the minimum interval between two non-forced state
	// evaluations of the same record.
	CheckSeconds = 5

	// ExpirationSeconds is how long a record stays ENABLED without a ping.
	ExpirationSeconds = 65 * 60

	// WatchdogMaxSeconds is how long a record survives without a watchdog
	// vote while the watchdog is active.
	WatchdogMaxSeconds = 120 * 60

	// MaxFutureSeconds is how far in the future a signing time may be.
	MaxFutureSeconds = 60 * 60

	// PingMaxBlockAge is how many blocks behind the tip a ping's block hash
	// may be.
	PingMaxBlockAge = 24

	// CoinRequired is the collateral amount in whole coins.
	CoinRequired = 5000

	// Coin is the number of base units per coin.
	Coin = 100000000
)

// Params are the network dependent parameters of the indexnode protocol.
type Params struct {
	Name string

	// Magic prefixes every frame exchanged between nodes of this network.
	Magic [4]byte

	// DefaultPort is the only port accepted on mainnet, and a forbidden port
	// elsewhere.
	DefaultPort     int
	MainDefaultPort int

	// MinMnpSeconds is the minimum interval between two pings, and the time
	// after the announcement before a node becomes ENABLED.
	MinMnpSeconds int64

	// NewStartRequiredSeconds is how long without a ping before a node needs a
	// fresh announcement.
	NewStartRequiredSeconds int64

	// MinConfirmations is the collateral depth required before a node can be
	// announced.
	MinConfirmations int

	// ProtocolVersion is the version this implementation speaks.
	ProtocolVersion int32

	// MinPaymentsProtocol is the lowest protocol version eligible for payment
	// and accepted in announcements.
	MinPaymentsProtocol int32

	// AllowPrivateAddrs lets nodes advertise non-routable addresses.
	AllowPrivateAddrs bool
}

// MainNetParams ...
func MainNetParams() *Params {
	return &Params{
		Name:                    MainNet,
		Magic:                   [4]byte{0xe5, 0xd3, 0xf7, 0x4d},
		DefaultPort:             8168,
		MainDefaultPort:         8168,
		MinMnpSeconds:           10 * 60,
		NewStartRequiredSeconds: 180 * 60,
		MinConfirmations:        15,
		ProtocolVersion:         90030,
		MinPaymentsProtocol:     90026,
	}
}

// TestNetParams ...
func TestNetParams() *Params {
	p := MainNetParams()
	p.Name = TestNet
	p.Magic = [4]byte{0xcf, 0xfc, 0xbe, 0xea}
	p.DefaultPort = 18168
	p.MinConfirmations = 1
	return p
}

// RegTestParams shortens every timer so that whole lifecycles fit in a test.
func RegTestParams() *Params {
	p := TestNetParams()
	p.Name = RegTest
	p.Magic = [4]byte{0xfa, 0xbf, 0xb5, 0xda}
	p.DefaultPort = 18444
	p.MinMnpSeconds = 30
	p.NewStartRequiredSeconds = 60
	p.AllowPrivateAddrs = true
	return p
}

// ParamsFor returns the parameters of the named network, or nil.
func ParamsFor(network string) *Params {
	switch network {
	case MainNet:
		return MainNetParams()
	case TestNet:
		return TestNetParams()
	case RegTest:
		return RegTestParams()
	}
	return nil
}

// IsMain ...
func (p *Params) IsMain() bool { return p.Name == MainNet }

// IsRegTest ...
func (p *Params) IsRegTest() bool { return p.Name == RegTest }
