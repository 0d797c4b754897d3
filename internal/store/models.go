package store

// Node is one mesh participant.
type Node struct {
	NodeNum            uint32
	NodeID             string
	LongName           string
	ShortName          string
	HWModel            string
	Role               string
	PublicKey          string // base64; empty when the node has not advertised one
	Lat, Lon, Alt      float64
	HasPosition        bool
	PrecisionBits      int
	BatteryLevel       int // 0-100, or 101 for mains-powered; 0 with HasBattery=false means unknown
	HasBattery         bool
	Voltage            float64
	ChannelUtilization float64
	AirUtilTx          float64
	LastHeard          int64 // unix seconds
	SNR                float64
	RSSI               int
	HopsAway           int
	HopsAwayKnown      bool
	ViaMQTT            bool
	IsFavorite         bool
	IsMobile           bool
	WelcomedAt         int64 // 0 = never welcomed
}

// Message is one mesh text/tapback event.
type Message struct {
	ID           string // {nodeNum}_{packetId}
	FromNodeNum  uint32
	ToNodeNum    uint32
	Channel      int32 // -1 for direct messages
	Portnum      int32
	Text         string
	Timestamp    int64
	HopStart     int
	HopLimit     int
	ReplyID      uint32
	Emoji        int
	Acknowledged bool
	AckFailed    bool
	Bridge       bool
	IsTapback    bool
}

// Channel is one of the 8 configured mesh channels.
type Channel struct {
	ID              int
	Name            string
	PSK             string
	Role            int // 0 disabled, 1 primary, 2 secondary
	UplinkEnabled   bool
	DownlinkEnabled bool
	CreatedAt       int64
	UpdatedAt       int64
}

// TelemetrySample is one append-only telemetry metric reading.
type TelemetrySample struct {
	NodeNum   uint32
	Kind      string // device, environment, power, local-stats
	Metric    string
	Value     float64
	Timestamp int64
}

// PositionHistoryPoint is one append-only position fix.
type PositionHistoryPoint struct {
	NodeID    string
	Lat, Lon  float64
	Alt       float64
	Timestamp int64
}

// Traceroute is one traceroute result.
type Traceroute struct {
	ID          int64
	FromNodeNum uint32
	ToNodeNum   uint32
	Route       []uint32
	RouteBack   []uint32
	SNRTowards  []int32
	SNRBack     []int32
	HopCount    int
	Timestamp   int64
}

// NeighborEdge is one neighbor-info edge.
type NeighborEdge struct {
	NodeNum         uint32
	NeighborNodeNum uint32
	SNR             float64
	LastRxTime      int64
	Timestamp       int64
}
