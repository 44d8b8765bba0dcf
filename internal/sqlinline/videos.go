package sqlinline

// QEnqueueVideoJob inserts a job unless an active job with the same dedupe
// key exists or a free account has no uses left once active jobs are counted.
// job_id is null when nothing was inserted or reused.
const QEnqueueVideoJob = `--sql 201cdc1f-7deb-478c-bd92-32604d069f0e
with input as (
    select
        $1::uuid as user_id,
        $2::text as prompt,
        $3::text as aspect_ratio,
        $4::text as target_length,
        $5::text as dedupe_key
),
existing as (
    select j.id
    from video_jobs j
    where j.dedupe_key = (select dedupe_key from input)
      and j.status in ('QUEUED', 'RUNNING')
    limit 1
),
account as (
    select
        u.plan,
        u.free_uses_remaining - (
            select count(*)
            from video_jobs a
            where a.user_id = u.id
              and a.status in ('QUEUED', 'RUNNING')
        )::int as available
    from users u
    where u.id = (select user_id from input)
),
inserted as (
    insert into video_jobs (id, user_id, prompt, aspect_ratio, target_length, dedupe_key, status, created_at, updated_at)
    select gen_random_uuid(), i.user_id, i.prompt, i.aspect_ratio, i.target_length, i.dedupe_key, 'QUEUED', now(), now()
    from input i
    where not exists (select 1 from existing)
      and exists (select 1 from account where plan = 'pro' or available > 0)
    on conflict do nothing
    returning id
)
select
    coalesce((select id from inserted), (select id from existing)) as job_id,
    exists (select 1 from existing) as deduplicated,
    coalesce((select plan from account), '') as plan,
    coalesce((select available from account), 0) as available;
`

const QClaimVideoJob = `--sql b9f9fe11-bc1e-42a8-9cba-e7113cdc6167
with next_job as (
    select id
    from video_jobs
    where status = 'QUEUED'
    order by created_at asc
    for update skip locked
    limit 1
)
update video_jobs
set status = 'RUNNING',
    attempts = attempts + 1,
    started_at = now(),
    updated_at = now()
where id in (select id from next_job)
returning id, user_id, prompt, aspect_ratio, target_length, dedupe_key, attempts;
`

const QUpdateVideoJobProgress = `--sql ed800cd3-6836-4d05-b359-3adfc7e6862c
update video_jobs
set progress_stage = $2::text,
    progress_step = $3::int,
    progress_total = $4::int,
    progress_message = $5::text,
    updated_at = now()
where id = $1::uuid
  and status = 'RUNNING';
`

const QCompleteVideoJob = `--sql 21fd7aae-5223-4434-b0ff-ab2fe0dd0a0c
update video_jobs
set status = 'SUCCEEDED',
    storage_key = $2::text,
    mime_type = $3::text,
    bytes = $4::bigint,
    shared = $5::boolean,
    finished_at = now(),
    updated_at = now()
where id = $1::uuid;
`

const QFailVideoJob = `--sql fa76dbc5-3747-4a3c-b5ec-8b7cd471f475
update video_jobs
set status = 'FAILED',
    error_kind = $2::text,
    error_message = $3::text,
    finished_at = now(),
    updated_at = now()
where id = $1::uuid;
`

const QSelectVideoJobForUser = `--sql 11dad6ef-31cb-49c1-a861-da863aed787b
select
    id, user_id, prompt, aspect_ratio, target_length, status,
    progress_stage, progress_step, progress_total, progress_message,
    error_kind, error_message, storage_key, mime_type, bytes,
    created_at, updated_at, started_at, finished_at
from video_jobs
where id = $1::uuid
  and user_id = $2::uuid
limit 1;
`

const QRequeueStaleVideoJobs = `--sql c8254eb4-4432-49ed-8910-1b49185ea44d
update video_jobs
set status = 'QUEUED',
    progress_stage = '',
    progress_message = '',
    updated_at = now()
where status = 'RUNNING'
  and updated_at < now() - make_interval(secs => $1::int);
`
