// Package config loads the client configuration.
//
// # Resolution
//
//  1. An explicit path, or ~/.config/zheye/config.toml
//  2. A missing file is not an error: every key has a default
//  3. ZHEYE_* environment variables override file values; nested keys use
//     underscores (ZHEYE_SESSION_BACKEND, ZHEYE_LOG_LEVEL)
//
// # Keys
//
//	api_base_url         http://apis.imooc.com/api/
//	partner_code         appended as icode to every request
//	page_size            6
//	loading_clear_delay  200ms
//	request_timeout      10s
//	rate_limit           0 (off), requests per second
//	rate_burst           1
//	metrics_addr         empty (off)
//	trace                false, writes API call spans to the log
//	theme                default
//	session.backend      file | redis | memory
//	session.path         ~/.config/zheye/session.toml
//	session.redis_addr   localhost:6379
//	session.redis_key    zheye:token
//	log.level            info
//	log.format           json | text
//	log.file             ~/.local/share/zheye/zheye.log ("-" for stderr)
//
// Paths accept a leading tilde.
package config
