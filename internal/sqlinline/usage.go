package sqlinline

const QInsertUsageEvent = `--sql 8485207b-a6e1-40ed-bc86-17bb054161e0
insert into usage_events (id, user_id, job_id, event_type, success, latency_ms, country, properties, created_at)
values (gen_random_uuid(), $1::uuid, $2::uuid, $3::text, $4::boolean, $5::int, nullif($6::text, ''), coalesce($7::jsonb, '{}'::jsonb), now());
`
