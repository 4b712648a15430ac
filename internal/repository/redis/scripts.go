package redis

import "github.com/go-redis/redis/v8"

// Each queue transition runs as one Lua script so Redis applies it atomically.
// Timestamps are passed in as unix milliseconds.

// KEYS: task, pending, failed. ARGV: key, payload, now.
var enqueueScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status and status ~= 'failed' then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'payload', ARGV[2], 'status', 'queued', 'attempts', 0, 'failures', 0, 'updated_at', ARGV[3])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// KEYS: pending, active. ARGV: now, visibility deadline, task key prefix.
var dequeueScript = redis.NewScript(`
local key = redis.call('RPOP', KEYS[1])
if not key then
	return false
end
local task = ARGV[3] .. key
local attempts = redis.call('HINCRBY', task, 'attempts', 1)
redis.call('HSET', task, 'status', 'active', 'updated_at', ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[2], key)
local payload = redis.call('HGET', task, 'payload')
if not payload then
	payload = key
end
return {key, payload, attempts}
`)

// A delivery whose attempt no longer matches the task hash was superseded by a
// redelivery and must leave the live one alone; ack and fail return -1 for it.

// KEYS: task, active. ARGV: key, now, result ttl, attempt.
var ackScript = redis.NewScript(`
local attempts = redis.call('HGET', KEYS[1], 'attempts')
if attempts and attempts ~= ARGV[4] then
	return -1
end
redis.call('ZREM', KEYS[2], ARGV[1])
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'status', 'finished', 'updated_at', ARGV[2])
redis.call('HDEL', KEYS[1], 'last_error')
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// KEYS: task, active, scheduled, failed. ARGV: key, now, max retries, error, attempt, run-at per retry...
var failScript = redis.NewScript(`
local attempts = redis.call('HGET', KEYS[1], 'attempts')
if attempts and attempts ~= ARGV[5] then
	return -1
end
redis.call('ZREM', KEYS[2], ARGV[1])
local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
redis.call('HSET', KEYS[1], 'last_error', ARGV[4], 'updated_at', ARGV[2])
if failures <= tonumber(ARGV[3]) then
	local idx = failures + 5
	if idx > #ARGV then
		idx = #ARGV
	end
	redis.call('HSET', KEYS[1], 'status', 'scheduled')
	redis.call('ZADD', KEYS[3], ARGV[idx], ARGV[1])
	return 1
end
redis.call('HSET', KEYS[1], 'status', 'failed')
redis.call('ZADD', KEYS[4], ARGV[2], ARGV[1])
return 0
`)

// KEYS: scheduled, active, pending. ARGV: now, task key prefix.
var promoteScript = redis.NewScript(`
local moved = 0
for _, set in ipairs({KEYS[1], KEYS[2]}) do
	local due = redis.call('ZRANGEBYSCORE', set, '-inf', ARGV[1])
	for _, key in ipairs(due) do
		redis.call('ZREM', set, key)
		redis.call('HSET', ARGV[2] .. key, 'status', 'queued', 'updated_at', ARGV[1])
		redis.call('LPUSH', KEYS[3], key)
		moved = moved + 1
	end
end
return moved
`)

// KEYS: task, pending, active, scheduled, failed. ARGV: key, payload, now.
var requeueScript = redis.NewScript(`
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('ZREM', KEYS[5], ARGV[1])
redis.call('LREM', KEYS[2], 0, ARGV[1])
redis.call('HSET', KEYS[1], 'payload', ARGV[2], 'status', 'queued', 'failures', 0, 'updated_at', ARGV[3])
redis.call('PERSIST', KEYS[1])
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)
