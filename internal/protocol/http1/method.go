package http1

// Method is the closed set of request kinds the server distinguishes.
// Every verb other than GET and PUT is Unsupported.
type Method uint8

const (
	Unsupported Method = iota
	GET
	PUT
)

// ParseMethod classifies a request verb. Matching is case-sensitive.
func ParseMethod(str string) Method {
	switch str {
	case "GET":
		return GET
	case "PUT":
		return PUT
	default:
		return Unsupported
	}
}

func (m Method) String() string {
	switch m {
	case GET:
		return "GET"
	case PUT:
		return "PUT"
	default:
		return "UNSUPPORTED"
	}
}
