package sqlinline

const QUpsertGoogleUser = `--sql c9a238b7-8b75-49ec-9643-0bfc1f079da1
with incoming as (
    select
        $1::text as google_sub,
        $2::text as email,
        $3::text as name,
        $4::text as picture,
        $5::text as locale,
        $6::int as free_uses
)
insert into users (id, google_sub, email, name, picture, locale, plan, free_uses_remaining, created_at, updated_at)
select gen_random_uuid(), google_sub, email, name, picture, locale, 'free', free_uses, now(), now()
from incoming
on conflict (google_sub) do update set
    email = excluded.email,
    name = excluded.name,
    picture = excluded.picture,
    locale = excluded.locale,
    updated_at = now()
returning id, google_sub, email, name, picture, locale, plan, free_uses_remaining, created_at, updated_at;
`

const QSelectUserByID = `--sql fda6ac48-7579-4984-8965-03f9f77891fb
select id, google_sub, email, name, picture, locale, plan, free_uses_remaining, created_at, updated_at
from users
where id = $1::uuid
limit 1;
`

const QSelectUserByEmail = `--sql 2ae9ba66-a39f-4a3d-985a-8bb266065c80
select id, google_sub, email, name, picture, locale, plan, free_uses_remaining, created_at, updated_at
from users
where lower(email) = lower($1::text)
limit 1;
`

const QConsumeFreeUse = `--sql 2b5a3781-a0bb-456e-95ed-8aef2f69c1e6
update users
set free_uses_remaining = greatest(free_uses_remaining - 1, 0),
    updated_at = now()
where id = $1::uuid
  and plan = 'free'
returning free_uses_remaining;
`

const QUpdateUserPlan = `--sql 21a6b53a-a8d1-4a54-ab7b-7470573a3220
update users
set plan = $2::text,
    free_uses_remaining = coalesce($3::int, free_uses_remaining),
    updated_at = now()
where id = $1::uuid
returning id, google_sub, email, name, picture, locale, plan, free_uses_remaining, created_at, updated_at;
`
