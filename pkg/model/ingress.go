package model

// Transport names the ingress protocol family.
type Transport string

const (
	TransportHTTP  Transport = "http"
	TransportHTTP2 Transport = "http2"
	TransportTCP   Transport = "tcp"
	TransportGRPC  Transport = "grpc"
)

// Ingress is the externally reachable endpoint contract for a service.
type Ingress struct {
	External     bool
	TargetPort   int
	ExposedPort  int
	Transport    Transport
}
