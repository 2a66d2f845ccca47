// Package redis provides Redis connection management with retry logic and a
// health check closure. The service uses Redis for the short-lived delivery
// report cache; everything durable lives in PostgreSQL.
package redis
