// Package redisstream provides a Redis Streams journal store for xmsg.
//
// Store name: "redis-streams"
//
// Each message is one stream entry holding its kind and the five data fields.
// Load walks the stream with XRANGE, so entries come back in append order.
//
// Config keys:
// - addr: "host:port" (default "127.0.0.1:6379")
// - stream: stream key (default "xmsg:journal")
// - page_size: XRANGE COUNT per round trip (default 512)
// - max_len_approx: approximate MAXLEN trimming on append (default 0 = off)
//
// Example:
//
//	store, _ := xmsg.NewStore(redisstream.StoreName, map[string]any{
//	    "addr":   "localhost:6379",
//	    "stream": "orders:journal",
//	})
package redisstream
