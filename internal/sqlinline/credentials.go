package sqlinline

const QCredentialList = `--sql aeaf3543-6ca8-4f73-9dba-dfd4249b5912
select id::text, label, key, healthy, last_error, last_used_at, created_at
from provider_credentials
order by created_at asc, id asc;
`

const QCredentialInsert = `--sql 027777f2-dbea-408c-a5d6-e9c8b67e6faa
insert into provider_credentials (id, label, key, healthy, last_error, created_at)
values ($1::uuid, $2::text, $3::text, true, '', now())
returning created_at;
`

const QCredentialMarkUnhealthy = `--sql a91611ff-f6f4-4f6e-ba24-93c37a17b8db
update provider_credentials
set healthy = false,
    last_error = $2::text
where id = $1::uuid;
`

const QCredentialReset = `--sql beb15c89-9fd9-4426-9592-07973b0525ba
update provider_credentials
set healthy = true,
    last_error = ''
where id = $1::uuid;
`

const QCredentialTouch = `--sql 5bafa263-159c-4b88-bc5b-d49fdb3ff8eb
update provider_credentials
set last_used_at = $2::timestamptz
where id = $1::uuid;
`
