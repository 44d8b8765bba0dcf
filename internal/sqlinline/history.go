package sqlinline

const QInsertHistory = `--sql 169bdb4b-5250-4203-8d69-be0879e85c06
insert into history (id, user_id, job_id, prompt, aspect_ratio, target_length, storage_key, mime_type, created_at)
values (gen_random_uuid(), $1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::text, $7::text, now())
returning id, created_at;
`

const QListHistoryByUser = `--sql c0f77c51-1cea-420f-a6bf-d00fddc96431
select id, job_id, prompt, aspect_ratio, target_length, storage_key, mime_type, created_at
from history
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`
