// Package config loads and watches the receiver configuration file.
//
// Top-level types:
//   - Config{Receiver}: the `receiver:` section of receiver.yaml
//   - ReceiverConfig: listen address, http_port, detector tuning, the phi
//     threshold ladder, stability and abandonment rules, auth, peers, alerts
//   - DetectorConfig: min_stddev (duration) and history_size
//   - AuthConfig: mode (apikey|none), key_env, header; Key() resolves the
//     expected key from the environment
//   - PeersConfig: status retention ttl and the max concurrent peers
//   - AlertsConfig, AlertRule, WebhookConfig: alert rules over peer status
//
// Load(path) reads the YAML file, applies defaults (listen :7946, http 8080,
// min_stddev 1ms, history 10, ladder 1/2/3/6, stable phi 3 after 5 reads,
// abandon above phi 6, tolerance 1µs, idle timeout 30s, peer TTL 5m), then
// validates ranges and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on write and
// keeps the previous config when the new one fails to load.
package config
