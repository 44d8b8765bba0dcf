package sqlinline

const QSelectIntegrationToken = `--sql 8f3fce1d-d000-4a2a-82a6-97293265d1ae
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 98c8028d-ebb8-4d4f-a44a-b5429d7294c8
with incoming as (
    select
        $1::text as provider,
        $2::text as token,
        coalesce($3::jsonb, '{}'::jsonb) as properties
)
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), (select provider from incoming), (select token from incoming), (select properties from incoming), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`

const QSelectUserCredential = `--sql 1341beaf-5237-4c03-92a9-374cc8851a43
select token
from user_credentials
where user_id = $1::uuid
  and provider = $2::text
limit 1;
`

const QUpsertUserCredential = `--sql 988ae2d6-ef80-4945-b12c-e05f4082ba08
insert into user_credentials (user_id, provider, token, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, now(), now())
on conflict (user_id, provider) do update set
    token = excluded.token,
    updated_at = now();
`

const QDeleteUserCredential = `--sql 488be018-7e33-41db-8515-1e8576c76efd
delete from user_credentials
where user_id = $1::uuid
  and provider = $2::text;
`
