package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeShift     = "SHIFT"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// IncludeWindow asks for a per-region summary of the published window
	// with every SHIFT message.
	IncludeWindow bool `json:"include_window,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	Params          StreamParams `json:"stream_params"`
	Origin          [2]int       `json:"origin"`
	Shifts          uint64       `json:"shifts"`
	InProgress      bool         `json:"in_progress"`
	Window          []RegionInfo `json:"window"`
}

type StreamParams struct {
	TickRateHz       int     `json:"tick_rate_hz"`
	RegionSize       int     `json:"region_size"`
	VertexSpacing    float64 `json:"vertex_spacing"`
	RegionLimit      int     `json:"region_limit"`
	RegionShiftLimit int     `json:"region_shift_limit"`
	CacheMode        string  `json:"cache_mode"`
}

// Server -> Client. Sent once per committed shift.
type ShiftMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	ID         string  `json:"id"`
	Seq        uint64  `json:"seq"`
	Shift      [2]int  `json:"shift"`
	Origin     [2]int  `json:"origin"`
	DurationMS float64 `json:"duration_ms"`

	Generated     int `json:"generated"`
	Loaded        int `json:"loaded"`
	Cached        int `json:"cached"`
	Evicted       int `json:"evicted"`
	LoadFallbacks int `json:"load_fallbacks"`
	CacheMisses   int `json:"cache_misses"`
	SaveErrors    int `json:"save_errors"`

	// Observer position after the correction was applied.
	Position [3]float64 `json:"position"`

	Window []RegionInfo `json:"window,omitempty"`
}

// RegionInfo summarises one published region.
type RegionInfo struct {
	Real    [2]int  `json:"real"`
	Virtual [2]int  `json:"virtual"`
	Min     float32 `json:"min"`
	Max     float32 `json:"max"`
}

const shiftSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version", "id", "seq", "shift", "origin", "duration_ms",
               "generated", "loaded", "cached", "evicted", "position"],
  "properties": {
    "type": {"const": "SHIFT"},
    "protocol_version": {"const": "0.1"},
    "id": {"type": "string", "minLength": 1},
    "seq": {"type": "integer", "minimum": 1},
    "shift": {"$ref": "#/$defs/loc"},
    "origin": {"$ref": "#/$defs/loc"},
    "duration_ms": {"type": "number", "minimum": 0},
    "generated": {"type": "integer", "minimum": 0},
    "loaded": {"type": "integer", "minimum": 0},
    "cached": {"type": "integer", "minimum": 0},
    "evicted": {"type": "integer", "minimum": 0},
    "load_fallbacks": {"type": "integer", "minimum": 0},
    "cache_misses": {"type": "integer", "minimum": 0},
    "save_errors": {"type": "integer", "minimum": 0},
    "position": {"type": "array", "items": {"type": "number"}, "minItems": 3, "maxItems": 3},
    "window": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["real", "virtual", "min", "max"],
        "properties": {
          "real": {"$ref": "#/$defs/loc"},
          "virtual": {"$ref": "#/$defs/loc"},
          "min": {"type": "number"},
          "max": {"type": "number"}
        }
      }
    }
  },
  "$defs": {
    "loc": {"type": "array", "items": {"type": "integer"}, "minItems": 2, "maxItems": 2}
  }
}`

const subscribeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version"],
  "properties": {
    "type": {"const": "SUBSCRIBE"},
    "protocol_version": {"type": "string"},
    "include_window": {"type": "boolean"}
  }
}`

// Schemas maps a message type to its JSON schema.
var Schemas = map[string]string{
	TypeShift:     shiftSchema,
	TypeSubscribe: subscribeSchema,
}
