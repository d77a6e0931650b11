/*
Package httpserver runs the HTTP listeners shared by the registry and intake
binaries.

A Server mounts any number of RouteRegistrar handlers behind the request
logging middleware and adds the operational endpoints:

  - GET /livez    always 200 while the process is up
  - GET /readyz   200 while ready, 503 while draining
  - GET /drain    marks the server not ready
  - GET /undrain  marks the server ready again
  - /debug/pprof  when EnablePprof is set

Prometheus metrics are served on a separate listener (MetricsAddr).
Shutdown drains for DrainDuration before stopping both listeners.
*/
package httpserver
