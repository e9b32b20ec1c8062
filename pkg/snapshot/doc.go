// Package snapshot persists computed activity series by username so a
// heatmap can be shared and replayed without calling the provider again.
//
// Every backend implements Store with last-write-wins semantics per
// username:
//
//   - FileStore writes one JSON file per user, replaced atomically
//   - HTTPStore calls an external PUT/GET /{username} service behind a
//     retry loop and a circuit breaker
//   - SQLiteStore upserts into a single table
//   - RedisStore keeps snapshot:{username} keys
//   - DynamoStore keeps one SNAPSHOT#{username} item
//
// Open selects a backend from configuration.
package snapshot
